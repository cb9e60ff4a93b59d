package auth

import "net/http"

// ContextKey is the type used for context keys
type ContextKey string

const (
	// ContextKeyUserID is the key for the authenticated user id
	ContextKeyUserID ContextKey = "userID"
	// ContextKeyIsAdmin is the key for the admin flag
	ContextKeyIsAdmin ContextKey = "isAdmin"
	// ContextKeyLanguage is the key for the preferred language tag
	ContextKeyLanguage ContextKey = "language"
	// ContextKeyTraceID is the key for the per-request trace id
	ContextKeyTraceID ContextKey = "traceID"
)

// GetUserID retrieves the authenticated user id from the request context.
func GetUserID(r *http.Request) string {
	if id, ok := r.Context().Value(ContextKeyUserID).(string); ok {
		return id
	}
	return ""
}

// IsAdmin checks if the authenticated user is an admin.
func IsAdmin(r *http.Request) bool {
	if isAdmin, ok := r.Context().Value(ContextKeyIsAdmin).(bool); ok {
		return isAdmin
	}
	return false
}

// PreferredLanguage retrieves the request's preferred language tag. The auth
// middleware always sets it; empty means the middleware did not run.
func PreferredLanguage(r *http.Request) string {
	if lang, ok := r.Context().Value(ContextKeyLanguage).(string); ok {
		return lang
	}
	return ""
}

// TraceID retrieves the per-request trace id.
func TraceID(r *http.Request) string {
	if id, ok := r.Context().Value(ContextKeyTraceID).(string); ok {
		return id
	}
	return ""
}
