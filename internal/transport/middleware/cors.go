package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type, x-trace-id"
	corsAllowMethods = "GET, POST, OPTIONS"
)

// SetCORSHeaders writes the CORS response headers for origin against the allowed list.
// An empty list or "*" allows any origin.
func SetCORSHeaders(w http.ResponseWriter, origin string, allowed []string) {
	h := w.Header()
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	h.Set("Access-Control-Allow-Methods", corsAllowMethods)

	if len(allowed) == 0 {
		h.Set("Access-Control-Allow-Origin", "*")
		return
	}
	for _, a := range allowed {
		if a == "*" {
			h.Set("Access-Control-Allow-Origin", "*")
			return
		}
		if origin != "" && strings.EqualFold(a, origin) {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			return
		}
	}
}

// ParseOrigins splits a comma-separated allowed_origins value.
func ParseOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// CORS answers preflight requests with 204 and decorates every other response.
func CORS(allowedOrigins string) func(http.Handler) http.Handler {
	allowed := ParseOrigins(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			SetCORSHeaders(w, r.Header.Get("Origin"), allowed)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
