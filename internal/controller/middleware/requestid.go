package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"imageforge/internal/logger"
)

// RequestIDMiddleware tags every request with a correlation ID and
// echoes it in the X-Request-ID response header. An ID supplied by the
// caller is kept so IDs stay stable across proxies.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
