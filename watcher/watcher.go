// Package watcher wraps a filesystem change notifier behind the small
// contract the reconcilers need: watch, on_event, pause, resume, stop. The
// one guarantee callers depend on is that no callback fires between a
// pause() and the matching resume(). rjeczalik/notify has no native
// pause/resume, so this package emulates it with a gate flag checked inside
// the dispatch loop.
package watcher

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rjeczalik/notify"
)

// Callback is invoked once per filesystem event observed while the watcher
// is running and not paused.
type Callback func(path string)

// Watcher watches a single root path recursively for filesystem changes.
type Watcher struct {
	root string
	ch   chan notify.EventInfo

	mu      sync.Mutex
	cb      Callback
	paused  int32 // atomic gate: events are dropped while non-zero
	stopped bool
	done    chan struct{}
}

// Watch begins watching root and everything beneath it. The watcher starts
// unpaused with no registered callback; register one with OnEvent before
// events matter, since events observed before OnEvent is called are
// dropped.
func Watch(root string) (*Watcher, error) {
	w := &Watcher{
		root: root,
		ch:   make(chan notify.EventInfo, 100),
		done: make(chan struct{}),
	}

	if err := notify.Watch(root+"/...", w.ch, notify.All); err != nil {
		return nil, errors.Wrapf(err, "watching %s/...", root)
	}

	go w.dispatch()

	return w, nil
}

// OnEvent registers cb to be called once per observed filesystem event.
// Only one callback may be registered at a time; a later call replaces the
// earlier one.
func (w *Watcher) OnEvent(cb Callback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cb = cb
}

func (w *Watcher) dispatch() {
	defer close(w.done)

	for ev := range w.ch {
		if atomic.LoadInt32(&w.paused) != 0 {
			continue
		}

		w.mu.Lock()
		cb := w.cb
		w.mu.Unlock()

		if cb == nil {
			continue
		}
		cb(ev.Path())
	}
}

// Pause raises the gate: no callback fires for any event observed from this
// call onward, until Resume is called. Events arriving while paused are
// discarded, not buffered.
func (w *Watcher) Pause() {
	atomic.StoreInt32(&w.paused, 1)
}

// Resume lowers the gate raised by Pause.
func (w *Watcher) Resume() {
	atomic.StoreInt32(&w.paused, 0)
}

// Stop halts watching and releases the underlying notify channel. Stop is
// idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	notify.Stop(w.ch)
	close(w.ch)
	<-w.done
	log.Printf("stopped watching %s", w.root)
}
