package platform

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyMiddleware guards an HTTP handler with an X-API-Key header check.
// With an empty key the handler is served unguarded, which is the normal
// mode for a metrics listener bound to localhost.
func APIKeyMiddleware(key string, next http.Handler) http.Handler {
	if key == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
