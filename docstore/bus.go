package docstore

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrInterrupt signals that a handler wants to stop further dispatch.
var ErrInterrupt = errors.New("bus interrupted")

// HandlerFn is a notification handler. Handlers run synchronously and
// to completion before the next notification is dispatched; a handler
// that writes back into the store re-enters the bus on the same
// goroutine, so handlers must converge (no write when the computed
// value already matches the stored one).
type HandlerFn func(ctx context.Context, event string, data interface{}) error

type busEntry struct {
	priority int
	fn       HandlerFn
	name     string
}

// Bus dispatches document lifecycle notifications to registered
// handlers in priority order (lower runs first).
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]*busEntry
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]*busEntry)}
}

// Register adds a HandlerFn for the given event. name is used for Unregister.
func (b *Bus) Register(event string, priority int, name string, fn HandlerFn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[event]
	entries = append(entries, &busEntry{priority: priority, fn: fn, name: name})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	b.handlers[event] = entries
}

// Unregister removes all handlers with the given name for the given event.
func (b *Bus) Unregister(event, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[event]
	n := 0
	for _, e := range entries {
		if e.name != name {
			entries[n] = e
			n++
		}
	}
	b.handlers[event] = entries[:n]
}

// Publish executes all registered handlers for event in priority order.
// If a handler returns ErrInterrupt, dispatch stops and ErrInterrupt is
// returned. Other handler errors do not stop dispatch; they are joined
// into the returned error.
func (b *Bus) Publish(ctx context.Context, event string, data interface{}) error {
	b.mu.RLock()
	entries := make([]*busEntry, len(b.handlers[event]))
	copy(entries, b.handlers[event])
	b.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		if err := e.fn(ctx, event, data); err != nil {
			if errors.Is(err, ErrInterrupt) {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ---- Document lifecycle event names ----

const (
	EventPostCreate = "document.post_create"
	EventPreUpdate  = "document.pre_update"
	EventPostUpdate = "document.post_update"
	EventPostDelete = "document.post_delete"
)
