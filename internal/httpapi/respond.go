package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/apierr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError translates err into the {detail, error_code} body spec §7
// requires, never leaking anything beyond the apierr.Error's message.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		writeJSON(w, apiErr.Status, map[string]any{
			"detail":     apiErr.Error(),
			"error_code": apiErr.Code,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"detail": "internal server error",
	})
}

// writeSSE formats one event exactly as spec.md §6 requires:
// "event: <type>\ndata: <json>\n\n".
func writeSSE(w http.ResponseWriter, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("httpapi: marshal sse payload: %w", err)
	}
	if strings.TrimSpace(eventType) != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", strings.TrimSpace(eventType)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
