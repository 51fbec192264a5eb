package middleware

import (
	"context"
	"net/http"
	"time"
)

const DefaultRequestTimeout = 10 * time.Second

// Timeout bounds the request context of handlers that do not already carry a
// deadline. Websocket upgrades are exempt; their lifetime is the session.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		d = DefaultRequestTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); ok || r.Header.Get("Upgrade") != "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
