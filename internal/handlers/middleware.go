package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	applog "labstock/internal/log"
)

// requestIDHeader is echoed back so clients can correlate reports with logs.
const requestIDHeader = "X-Request-ID"

// WithRequestID assigns each request a uuid, stores it in the context for the
// logger, and logs one line per request.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		ctx := applog.WithRequestID(r.Context(), id)
		w.Header().Set(requestIDHeader, id)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		applog.Debug(ctx, "request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start).String(),
		)
	})
}
