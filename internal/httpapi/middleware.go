package httpapi

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// accessLogAndMetrics wraps every request with structured logging and
// Prometheus recording, mirroring the teacher's statusWriter +
// accessLogMiddleware shape (internal/inference/httpapi/middleware.go)
// adapted to chi's ResponseWriter wrapper and a real metrics registry.
func accessLogAndMetrics(d Deps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(sw, r)

			route := r.URL.Path
			status := sw.Status()
			if status == 0 {
				status = http.StatusOK
			}
			d.Log.With(
				"request_id", chimw.GetReqID(r.Context()),
				"method", r.Method,
				"path", route,
				"status", status,
				"bytes", sw.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			).Info("http request")

			d.Metrics.HTTPRequest(r.Method, route, strconv.Itoa(status), time.Since(start).Seconds())
		})
	}
}
