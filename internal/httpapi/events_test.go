package httpapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/broadcaster"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/httpapi"
)

// flushRecorder lets /events' http.Flusher type assertion succeed
// against httptest.ResponseRecorder, which doesn't implement it.
type flushRecorder struct {
	*httptest.ResponseRecorder
}

func (f flushRecorder) Flush() {}

func TestEventsStreamsPublishedEventsAsSSE(t *testing.T) {
	d := newTestDeps(t)
	r := httpapi.NewRouter(d)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := flushRecorder{httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		r.ServeHTTP(rec, req)
		close(done)
	}()

	// give the handler time to subscribe before publishing
	time.Sleep(20 * time.Millisecond)
	d.Bus.Publish(context.Background(), broadcaster.Event{
		Type:    "task_status_changed",
		Payload: map[string]any{"task_key": "T-001"},
	})
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events handler did not return after context cancellation")
	}

	body := rec.Body.String()
	require.True(t, strings.Contains(body, "event: task_status_changed"))
	require.True(t, strings.Contains(body, "T-001"))
}
