package httpapi

import (
	"net/http"
	"time"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
)

// health implements GET /health (spec.md §6). "unhealthy" (503) fires
// when any system-level circuit is open or the Store probe errors;
// "degraded" (200) fires when a stage/worker circuit is open but the
// system as a whole is still accepting work.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	open, err := h.d.Store.ListOpenCircuits(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"circuits":  []circuitDTO{},
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	status := "ok"
	systemOpen := false
	circuits := make([]circuitDTO, 0, len(open))
	for _, c := range open {
		circuits = append(circuits, toCircuitDTO(c))
		if c.Level == domain.CircuitLevelSystem {
			systemOpen = true
		}
	}
	if len(open) > 0 {
		status = "degraded"
	}
	if systemOpen {
		status = "unhealthy"
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"circuits":  circuits,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) metrics(w http.ResponseWriter, r *http.Request) {
	h.d.Metrics.Handler().ServeHTTP(w, r)
}
