package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/CreativeUnicorns/prefs"
)

// LoggerMiddleware logs one line per request with its status and latency.
func LoggerMiddleware(logger prefs.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log := logger.Info
			if status >= http.StatusInternalServerError {
				log = logger.Warn
			}
			log("Served request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"latency_ms", float64(time.Since(start).Microseconds())/1000.0,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
