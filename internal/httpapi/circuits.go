package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/apierr"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
)

var errCircuitVersionConflict = errors.New("circuit was modified concurrently")

func (h *handlers) listCircuits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	circuits, err := h.d.Store.ListCircuits(r.Context(), q.Get("level"), q.Get("state"))
	if err != nil {
		writeError(w, apierr.ErrStoreDown)
		return
	}
	dtos := make([]circuitDTO, 0, len(circuits))
	for _, c := range circuits {
		dtos = append(dtos, toCircuitDTO(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"circuits": dtos})
}

// findCircuit resolves a circuit by its store ID. Store has no
// GetByID query (GetCircuit is keyed by level+identifier, matching
// how circuitbreaker.Registry looks circuits up at runtime), so the
// HTTP layer filters the list here instead of adding a query the
// domain never otherwise needs.
func (h *handlers) findCircuit(r *http.Request, id uuid.UUID) (*domain.CircuitBreaker, error) {
	circuits, err := h.d.Store.ListCircuits(r.Context(), "", "")
	if err != nil {
		return nil, err
	}
	for _, c := range circuits {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (h *handlers) getCircuit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "circuit_id"))
	if err != nil {
		writeError(w, apierr.ErrCircuitNotFound)
		return
	}
	c, err := h.findCircuit(r, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, apierr.ErrCircuitNotFound)
		return
	}
	if err != nil {
		writeError(w, apierr.ErrStoreDown)
		return
	}
	writeJSON(w, http.StatusOK, toCircuitDTO(c))
}

// resetCircuit implements POST /circuits/{circuit_id}/reset (spec.md
// §6). httpapi has no handle on the in-process circuitbreaker.Registry
// that workers read from, so it updates the persisted row directly and
// records a manual_reset event; the running circuit picks up the new
// state the next time it reloads from Store.
func (h *handlers) resetCircuit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "circuit_id"))
	if err != nil {
		writeError(w, apierr.ErrCircuitNotFound)
		return
	}
	c, err := h.findCircuit(r, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, apierr.ErrCircuitNotFound)
		return
	}
	if err != nil {
		writeError(w, apierr.ErrStoreDown)
		return
	}

	fromState := c.State
	zero := 0
	ok, err := h.d.Store.UpdateCircuit(r.Context(), c.ID, c.Version, store.CircuitFields{
		State:            domain.CircuitClosed,
		FailureCount:     &zero,
		HalfOpenRequests: &zero,
		ClearOpenedAt:    true,
	})
	if err != nil {
		writeError(w, apierr.ErrStoreDown)
		return
	}
	if !ok {
		writeError(w, apierr.New(http.StatusConflict, "ERR-CIRCUIT-409", errCircuitVersionConflict))
		return
	}

	_ = h.d.Store.RecordCircuitEvent(r.Context(), &domain.CircuitBreakerEvent{
		ID:        uuid.New(),
		CircuitID: c.ID,
		RunID:     c.RunID,
		EventType: domain.EventManualReset,
		FromState: fromState,
		ToState:   domain.CircuitClosed,
		Timestamp: time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"id":    c.ID.String(),
		"state": string(domain.CircuitClosed),
	})
}

func (h *handlers) circuitsHealth(w http.ResponseWriter, r *http.Request) {
	open, err := h.d.Store.ListOpenCircuits(r.Context())
	if err != nil {
		writeError(w, apierr.ErrStoreDown)
		return
	}
	dtos := make([]circuitDTO, 0, len(open))
	for _, c := range open {
		dtos = append(dtos, toCircuitDTO(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"open_circuits": dtos})
}
