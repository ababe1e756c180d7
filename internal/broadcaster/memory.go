package broadcaster

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Ravenight13/tdd-orchestrator-sub001/internal/logging"
)

// DefaultBufferSize is each subscriber's queue depth when the caller
// doesn't specify one.
const DefaultBufferSize = 256

// Memory is the default in-process Bus (spec §4.9). Zero subscribers
// makes Publish a no-op — there is no buffering for future subscribers,
// and a subscriber only receives events published after it joins.
type Memory struct {
	log *logging.Logger

	mu          sync.RWMutex
	subscribers map[Handle]chan Event
	nextHandle  uint64
	closed      bool
}

func NewMemory(log *logging.Logger) *Memory {
	return &Memory{log: log, subscribers: make(map[Handle]chan Event)}
}

func (m *Memory) Subscribe(bufferSize int) (Handle, <-chan Event) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	ch := make(chan Event, bufferSize)

	m.mu.Lock()
	defer m.mu.Unlock()
	h := Handle(atomic.AddUint64(&m.nextHandle, 1))
	m.subscribers[h] = ch
	return h, ch
}

func (m *Memory) Unsubscribe(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.subscribers[h]; ok {
		close(ch)
		delete(m.subscribers, h)
	}
}

// Publish enqueues ev on every current subscriber's queue. A full
// queue drops its oldest entry rather than blocking the producer
// (spec §4.9 "drop-oldest").
func (m *Memory) Publish(ctx context.Context, ev Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	for h, ch := range m.subscribers {
		m.enqueue(h, ch, ev)
	}
}

func (m *Memory) enqueue(h Handle, ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	// Queue full: drop the oldest entry and retry once.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
		m.log.Warn("broadcaster: subscriber queue still full after drop-oldest", "handle", h)
	}
}

// Shutdown signals every subscriber the stream is ending by closing
// its channel, then clears the registry (spec §4.9).
func (m *Memory) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for h, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, h)
	}
}

var _ Bus = (*Memory)(nil)
