package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the exposition endpoint for GET /metrics (spec.md
// §6). If metrics are disabled it returns a handler that reports 404,
// so routing stays unconditional in internal/httpapi.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
