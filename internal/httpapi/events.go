package httpapi

import (
	"net/http"
	"time"
)

// sseBufferSize is each /events subscriber's queue depth.
const sseBufferSize = 64

// heartbeatInterval is how often an idle /events connection receives a
// keep-alive comment, matching the teacher's internal/sse/hub.go.
const heartbeatInterval = 15 * time.Second

// events implements GET /events (spec.md §6): a Server-Sent Events
// stream of every broadcaster.Event published while the connection is
// open. Grounded on the teacher's internal/sse/hub.go Flusher loop.
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	handle, ch := h.d.Bus.Subscribe(sseBufferSize)
	defer h.d.Bus.Unsubscribe(handle)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := writeSSE(w, ev.Type, ev.Payload); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
