package redisbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/broadcaster"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/broadcaster/redisbus"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
)

func newTestBus(t *testing.T) (*redisbus.Bus, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bus := redisbus.New(client, logging.NewNop())

	return bus, func() {
		bus.Shutdown()
		_ = client.Close()
		mr.Close()
	}
}

func TestRedisBusPublishReachesSubscriber(t *testing.T) {
	bus, cleanup := newTestBus(t)
	defer cleanup()

	_, ch := bus.Subscribe(4)
	time.Sleep(50 * time.Millisecond) // allow the subscribe to register with the miniredis pubsub

	bus.Publish(context.Background(), broadcaster.Event{Type: "task_status_changed", Payload: map[string]any{"task_key": "TDD-01"}})

	select {
	case ev := <-ch:
		require.Equal(t, "task_status_changed", ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed event")
	}
}

func TestRedisBusUnsubscribeStopsDelivery(t *testing.T) {
	bus, cleanup := newTestBus(t)
	defer cleanup()

	h, ch := bus.Subscribe(4)
	time.Sleep(50 * time.Millisecond)
	bus.Unsubscribe(h)

	_, ok := <-ch
	require.False(t, ok)
}
