package utils

import "strings"

// IsAllowedOrigin checks an Origin header value against the configured
// allowlist. A single "*" entry trusts every origin; otherwise matching is
// exact and case-insensitive on the full origin (scheme://host[:port]).
func IsAllowedOrigin(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
