package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/apierr"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/broadcaster"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/domain"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/store"
)

var validate = validator.New()

type taskListQuery struct {
	Status string `validate:"omitempty,oneof=pending in_progress passing complete blocked blocked-static-review"`
	Limit  int    `validate:"gte=0"`
	Offset int    `validate:"gte=0"`
}

// listTasks implements GET /tasks (spec.md §6). phase must parse as an
// integer (422 otherwise); complexity is passed through to
// store.TaskFilter unvalidated — the data model carries no enum for it.
func (h *handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, offset := 50, 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, apierr.ErrValidation)
			return
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, apierr.ErrValidation)
			return
		}
		offset = n
	}

	filter := taskListQuery{Status: q.Get("status"), Limit: limit, Offset: offset}
	if err := validate.Struct(filter); err != nil {
		writeError(w, apierr.ErrValidation)
		return
	}

	storeFilter := store.TaskFilter{
		Status:     filter.Status,
		Complexity: q.Get("complexity"),
		Limit:      limit,
		Offset:     offset,
	}
	if v := q.Get("phase"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, apierr.ErrValidation)
			return
		}
		storeFilter.Phase = &p
	}

	tasks, total, err := h.d.Store.ListTasks(r.Context(), storeFilter)
	if err != nil {
		writeError(w, apierr.ErrStoreDown)
		return
	}

	dtos := make([]taskDTO, 0, len(tasks))
	for _, t := range tasks {
		dtos = append(dtos, toTaskDTO(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":  dtos,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *handlers) getTask(w http.ResponseWriter, r *http.Request) {
	taskKey := chi.URLParam(r, "task_key")
	task, err := h.d.Store.GetTask(r.Context(), taskKey)
	if err != nil {
		writeError(w, apierr.ErrTaskNotFound)
		return
	}

	attempts, err := h.d.Store.ListAttempts(r.Context(), task.ID)
	if err != nil {
		writeError(w, apierr.ErrStoreDown)
		return
	}
	attemptDTOs := make([]attemptDTO, 0, len(attempts))
	for _, a := range attempts {
		attemptDTOs = append(attemptDTOs, toAttemptDTO(a))
	}

	writeJSON(w, http.StatusOK, taskDetailDTO{taskDTO: toTaskDTO(task), Attempts: attemptDTOs})
}

func (h *handlers) taskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.d.Store.TaskStats(r.Context())
	if err != nil {
		writeError(w, apierr.ErrStoreDown)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": stats.Pending,
		"running": stats.Running,
		"passed":  stats.Passed,
		"failed":  stats.Failed,
		"total":   stats.Total,
	})
}

func (h *handlers) taskProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.d.Store.TaskProgress(r.Context())
	if err != nil {
		writeError(w, apierr.ErrStoreDown)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// retryTask implements POST /tasks/{task_key}/retry (spec.md §6): 200
// on success, 404 if missing, 409 if the task isn't in a retryable
// failure state. A successful retry publishes task_status_changed;
// publish failure never rolls back the status change (spec §7).
func (h *handlers) retryTask(w http.ResponseWriter, r *http.Request) {
	taskKey := chi.URLParam(r, "task_key")

	task, err := h.d.Store.RetryTask(r.Context(), taskKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, apierr.ErrTaskNotFound)
		return
	case err != nil:
		writeError(w, apierr.ErrRetryConflict)
		return
	}

	h.d.Bus.Publish(r.Context(), broadcaster.Event{
		Type: "task_status_changed",
		Payload: map[string]any{
			"task_key":   task.TaskKey,
			"new_status": string(domain.TaskPending),
		},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"task_key": task.TaskKey,
		"status":   string(task.Status),
	})
}

func (h *handlers) shadowSummary(w http.ResponseWriter, r *http.Request) {
	taskKey := chi.URLParam(r, "task_key")
	task, err := h.d.Store.GetTask(r.Context(), taskKey)
	if err != nil {
		writeError(w, apierr.ErrTaskNotFound)
		return
	}

	entries, err := h.d.Store.ShadowSummaryForTask(r.Context(), task.ID)
	if err != nil {
		writeError(w, apierr.ErrStoreDown)
		return
	}
	dtos := make([]shadowEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toShadowEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_key": taskKey,
		"shadow":   dtos,
	})
}
