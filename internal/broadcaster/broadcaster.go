// Package broadcaster is the pub/sub fan-out described in spec.md C9:
// per-subscriber bounded queues, drop-oldest backpressure, and a
// publish that never blocks on a slow subscriber. The default
// transport is in-process; internal/broadcaster/redisbus provides an
// optional Redis-backed transport satisfying the same interface for a
// multi-process deployment.
package broadcaster

import "context"

// Event is the envelope every subscriber receives. Payload is
// intentionally untyped (the coordinator's observer bridge and the
// task-retry handler publish map[string]any payloads) to keep this
// package free of a dependency on internal/observer.
type Event struct {
	Type    string
	Payload any
}

// Handle is an opaque subscription token returned by Subscribe.
type Handle uint64

// Bus is the pub/sub contract; Memory (this package) and
// redisbus.Bus both satisfy it.
type Bus interface {
	Subscribe(bufferSize int) (Handle, <-chan Event)
	Unsubscribe(h Handle)
	Publish(ctx context.Context, ev Event)
	Shutdown()
}
