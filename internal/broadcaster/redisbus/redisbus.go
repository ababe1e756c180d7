// Package redisbus is the optional Redis-backed broadcaster.Bus
// transport for a multi-process deployment, where an in-process
// Memory bus would only reach subscribers connected to the same
// instance. It satisfies the same interface via a single Redis
// pub/sub channel fanning out to local per-subscriber queues.
package redisbus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/broadcaster"
	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
)

const defaultChannel = "tdd-orchestrator:events"

type wireEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Bus publishes to a Redis channel and relays incoming messages to
// local subscriber queues, mirroring Memory's drop-oldest policy.
type Bus struct {
	client  *redis.Client
	channel string
	log     *logging.Logger

	mu          sync.RWMutex
	subscribers map[broadcaster.Handle]chan broadcaster.Event
	nextHandle  uint64
	closed      bool

	pubsub *redis.PubSub
	stop   context.CancelFunc
	done   chan struct{}
}

func New(client *redis.Client, log *logging.Logger) *Bus {
	return NewWithChannel(client, defaultChannel, log)
}

func NewWithChannel(client *redis.Client, channel string, log *logging.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		client:      client,
		channel:     channel,
		log:         log,
		subscribers: make(map[broadcaster.Handle]chan broadcaster.Event),
		stop:        cancel,
		done:        make(chan struct{}),
	}
	b.pubsub = client.Subscribe(ctx, channel)
	go b.relayLoop(ctx)
	return b
}

func (b *Bus) relayLoop(ctx context.Context) {
	defer close(b.done)
	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.fanOut(msg.Payload)
		}
	}
}

func (b *Bus) fanOut(raw string) {
	var we wireEvent
	if err := json.Unmarshal([]byte(raw), &we); err != nil {
		b.log.Warn("redisbus: discarding malformed event", "error", err.Error())
		return
	}
	var payload any
	if err := json.Unmarshal(we.Payload, &payload); err != nil {
		payload = string(we.Payload)
	}
	ev := broadcaster.Event{Type: we.Type, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		enqueue(sub, ev)
	}
}

func enqueue(ch chan broadcaster.Event, ev broadcaster.Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}

func (b *Bus) Subscribe(bufferSize int) (broadcaster.Handle, <-chan broadcaster.Event) {
	if bufferSize <= 0 {
		bufferSize = broadcaster.DefaultBufferSize
	}
	ch := make(chan broadcaster.Event, bufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	h := broadcaster.Handle(atomic.AddUint64(&b.nextHandle, 1))
	b.subscribers[h] = ch
	return h, ch
}

func (b *Bus) Unsubscribe(h broadcaster.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[h]; ok {
		close(ch)
		delete(b.subscribers, h)
	}
}

// Publish marshals ev and publishes it on the shared Redis channel;
// every process's relayLoop (including this one's) fans it out to its
// local subscribers.
func (b *Bus) Publish(ctx context.Context, ev broadcaster.Event) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		b.log.Warn("redisbus: marshal payload failed", "error", err.Error())
		return
	}
	raw, err := json.Marshal(wireEvent{Type: ev.Type, Payload: payload})
	if err != nil {
		b.log.Warn("redisbus: marshal envelope failed", "error", err.Error())
		return
	}
	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.log.Warn("redisbus: publish failed", "error", err.Error())
	}
}

func (b *Bus) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for h, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, h)
	}
	b.mu.Unlock()

	b.stop()
	_ = b.pubsub.Close()
	<-b.done
}

var _ broadcaster.Bus = (*Bus)(nil)
