// Package membus implements an in-process notification bus: fan-out
// channels per route, with local echo, standing in for whatever wire
// transport a deployment chooses for its bus.
package membus

import (
	"context"
	"sync"

	"github.com/rljson/fs-agent/bus"
	"github.com/rljson/fs-agent/history"
)

var _ bus.Bus = (*Bus)(nil)

// Bus is an in-process implementation of bus.Bus.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]bus.Callback
}

// New produces a new, empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[int]bus.Callback)}
}

// Subscribe implements bus.Bus.
func (b *Bus) Subscribe(route string, cb bus.Callback) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[route] == nil {
		b.subs[route] = make(map[int]bus.Callback)
	}
	id := b.nextID
	b.nextID++
	b.subs[route][id] = cb

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[route], id)
	}
}

func (b *Bus) callbacks(route string) []bus.Callback {
	b.mu.Lock()
	defer b.mu.Unlock()

	cbs := make([]bus.Callback, 0, len(b.subs[route]))
	for _, cb := range b.subs[route] {
		cbs = append(cbs, cb)
	}
	return cbs
}

// Publish implements bus.Bus. Delivery to each subscriber (including the
// publisher itself, via local echo) happens in its own goroutine, so
// Publish does not block on any subscriber's processing.
func (b *Bus) Publish(_ context.Context, route string, row history.Row) error {
	for _, cb := range b.callbacks(route) {
		cb := cb
		go cb(row)
	}
	return nil
}

// PublishWithAck implements bus.Bus. It runs every current subscriber's
// callback, each in its own goroutine, and returns once all have returned,
// or with ctx's error if ctx is done first.
func (b *Bus) PublishWithAck(ctx context.Context, route string, row history.Row) error {
	cbs := b.callbacks(route)

	var wg sync.WaitGroup
	wg.Add(len(cbs))
	for _, cb := range cbs {
		cb := cb
		go func() {
			defer wg.Done()
			cb(row)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
