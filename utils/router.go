package utils

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// RouterOptions configures the base router.
type RouterOptions struct {
	// AllowedOrigins for CORS; "*" trusts everything.
	AllowedOrigins []string
	// Ping is called by the health endpoint to verify the database.
	Ping func() error
}

// CORS middleware to allow cross-origin requests from configured origins
func corsMiddleware(allowed []string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && IsAllowedOrigin(origin, allowed) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Accept-Language")
			}

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewRouter constructs the base mux router with CORS and the health route.
func NewRouter(opts RouterOptions) *mux.Router {
	r := mux.NewRouter()

	r.Use(corsMiddleware(opts.AllowedOrigins))

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.Ping != nil {
			if err := opts.Ping(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "database": err.Error()})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	return r
}
