// Package httpapi serves the HTTP surface described in spec.md §6
// over go-chi, translating store/circuitbreaker/coordinator state
// into the exact JSON bodies and status codes the spec names. No
// other package in this module returns an HTTP status code (spec §7).
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/broadcaster"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/metrics"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
)

// Deps bundles the collaborators every handler needs. A single Deps
// is built once per process by cmd/orchestrator.
type Deps struct {
	Store   store.Store
	Bus     broadcaster.Bus
	Metrics *metrics.Metrics
	Log     *logging.Logger
}

// NewRouter builds the full route tree (spec.md §6).
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		MaxAge:           300,
		AllowCredentials: false,
	}))
	r.Use(accessLogAndMetrics(d))

	h := &handlers{d: d}

	r.Get("/health", h.health)
	r.Get("/metrics", h.metrics)

	r.Get("/tasks", h.listTasks)
	r.Get("/tasks/stats", h.taskStats)
	r.Get("/tasks/progress", h.taskProgress)
	r.Get("/tasks/{task_key}", h.getTask)
	r.Get("/tasks/{task_key}/shadow-summary", h.shadowSummary)
	r.Post("/tasks/{task_key}/retry", h.retryTask)

	r.Get("/runs", h.listRuns)
	r.Get("/runs/current", h.currentRun)
	r.Get("/runs/{run_id}", h.getRun)

	r.Get("/circuits", h.listCircuits)
	r.Get("/circuits/health", h.circuitsHealth)
	r.Get("/circuits/{circuit_id}", h.getCircuit)
	r.Post("/circuits/{circuit_id}/reset", h.resetCircuit)

	r.Get("/events", h.events)

	return r
}

type handlers struct {
	d Deps
}
