package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/apierr"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
)

func (h *handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.d.Store.ListRuns(r.Context())
	if err != nil {
		writeError(w, apierr.ErrStoreDown)
		return
	}
	dtos := make([]runDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

func (h *handlers) getRun(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "run_id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, apierr.ErrRunNotFound)
		return
	}
	run, err := h.d.Store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, apierr.ErrRunNotFound)
		return
	}
	if err != nil {
		writeError(w, apierr.ErrStoreDown)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

func (h *handlers) currentRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.d.Store.CurrentRun(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, apierr.ErrRunNotFound)
		return
	}
	if err != nil {
		writeError(w, apierr.ErrStoreDown)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}
