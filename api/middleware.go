package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"cineview/internal/auth"
)

// Claims carried by our bearer tokens. Lang drives upstream language
// selection and the cache key for authenticated users.
type Claims struct {
	UserID string `json:"user_id"`
	Admin  bool   `json:"admin"`
	Lang   string `json:"lang"`
	jwt.RegisteredClaims
}

// TraceMiddleware assigns every request a trace id, echoed back in the
// X-Trace-Id header and attached to error bodies.
func TraceMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := uuid.NewString()
			w.Header().Set("X-Trace-Id", traceID)
			ctx := context.WithValue(r.Context(), auth.ContextKeyTraceID, traceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RecoveryMiddleware converts panics into generic 500 responses. No internal
// detail leaks to the caller; the trace id links the response to the log line.
func RecoveryMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					traceID := auth.TraceID(r)
					log.Printf("[api] panic handling %s %s traceId=%s: %v", r.Method, r.URL.Path, traceID, rec)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error":   "internal server error",
						"traceId": traceID,
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// UserContextMiddleware resolves the caller's identity and preferred language.
// A bearer token is optional: a valid one contributes the user id, admin flag
// and language claim; otherwise the language comes from Accept-Language,
// constrained to the supported set, falling back to the default.
func UserContextMiddleware(jwtSecret string, supported []string, defaultLang string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			lang := ""

			if token := extractToken(r); token != "" {
				if claims, err := parseToken(token, jwtSecret); err == nil {
					ctx = context.WithValue(ctx, auth.ContextKeyUserID, claims.UserID)
					ctx = context.WithValue(ctx, auth.ContextKeyIsAdmin, claims.Admin)
					lang = claims.Lang
				} else {
					log.Printf("[api] ignoring invalid bearer token: %v", err)
				}
			}

			if lang == "" {
				lang = negotiateLanguage(r.Header.Get("Accept-Language"), supported)
			}
			if lang = matchSupported(lang, supported); lang == "" {
				lang = defaultLang
			}
			ctx = context.WithValue(ctx, auth.ContextKeyLanguage, lang)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnlyMiddleware creates middleware that only allows admin tokens.
func AdminOnlyMiddleware(jwtSecret string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			claims, err := parseToken(token, jwtSecret)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			if !claims.Admin {
				writeAuthError(w, http.StatusForbidden, "admin required")
				return
			}

			ctx := context.WithValue(r.Context(), auth.ContextKeyUserID, claims.UserID)
			ctx = context.WithValue(ctx, auth.ContextKeyIsAdmin, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseToken(tokenString, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// extractToken extracts the bearer token from the Authorization header.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// negotiateLanguage picks the first Accept-Language tag that matches the
// supported set. Quality weights are ignored beyond the header's own ordering.
func negotiateLanguage(header string, supported []string) string {
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(part)
		if i := strings.IndexByte(tag, ';'); i >= 0 {
			tag = strings.TrimSpace(tag[:i])
		}
		if tag == "" || tag == "*" {
			continue
		}
		if match := matchSupported(tag, supported); match != "" {
			return match
		}
	}
	return ""
}

func matchSupported(tag string, supported []string) string {
	for _, s := range supported {
		if strings.EqualFold(s, tag) {
			return s
		}
		// Bare language prefix matches its regional variant, e.g. "en" → "en-US".
		if base, _, ok := strings.Cut(s, "-"); ok && strings.EqualFold(base, tag) {
			return s
		}
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
