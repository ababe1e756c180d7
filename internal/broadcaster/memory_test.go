package broadcaster_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/broadcaster"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
)

func TestMemoryPublishIsNoOpWithZeroSubscribers(t *testing.T) {
	b := broadcaster.NewMemory(logging.NewNop())
	b.Publish(context.Background(), broadcaster.Event{Type: "task_status_changed"})
	// no assertion possible beyond "did not panic/block" — the invariant
	// under test is the absence of buffering for future subscribers.
}

func TestMemorySubscriberOnlySeesEventsAfterJoining(t *testing.T) {
	b := broadcaster.NewMemory(logging.NewNop())
	ctx := context.Background()

	b.Publish(ctx, broadcaster.Event{Type: "before"})

	_, ch := b.Subscribe(4)
	b.Publish(ctx, broadcaster.Event{Type: "after"})

	select {
	case ev := <-ch:
		require.Equal(t, "after", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case ev := <-ch:
		t.Fatalf("unexpected second event: %+v", ev)
	default:
	}
}

func TestMemoryDropsOldestOnFullQueue(t *testing.T) {
	b := broadcaster.NewMemory(logging.NewNop())
	ctx := context.Background()
	_, ch := b.Subscribe(1)

	b.Publish(ctx, broadcaster.Event{Type: "first"})
	b.Publish(ctx, broadcaster.Event{Type: "second"})

	ev := <-ch
	require.Equal(t, "second", ev.Type, "drop-oldest keeps the newest event when the queue is full")
}

func TestMemoryUnsubscribeIdempotent(t *testing.T) {
	b := broadcaster.NewMemory(logging.NewNop())
	h, ch := b.Subscribe(1)
	b.Unsubscribe(h)
	b.Unsubscribe(h)

	_, ok := <-ch
	require.False(t, ok, "channel must be closed after unsubscribe")
}

func TestMemoryShutdownClosesAllSubscribers(t *testing.T) {
	b := broadcaster.NewMemory(logging.NewNop())
	_, ch1 := b.Subscribe(1)
	_, ch2 := b.Subscribe(1)

	b.Shutdown()
	b.Shutdown() // idempotent

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	require.False(t, ok1)
	require.False(t, ok2)
}
