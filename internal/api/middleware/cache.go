package middleware

import (
	"net/http"
	"strings"
)

// CacheControl sets the Cache-Control header on responses for paths under prefix.
func CacheControl(prefix, value string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, prefix) {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
