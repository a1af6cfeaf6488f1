package reconcile

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/bus"
	"github.com/rljson/fs-agent/fsagent"
	"github.com/rljson/fs-agent/history"
	"github.com/rljson/fs-agent/projector"
	"github.com/rljson/fs-agent/treestore"
	"github.com/rljson/fs-agent/watcher"
)

// Inbound is the inbound reconciler: subscribe, debounce, fetch, diff,
// restore, requiesce the watcher.
type Inbound struct {
	Blobs    blob.Store
	Trees    *treestore.Store
	Bus      bus.Bus
	Watcher  *watcher.Watcher
	Route    string
	Dir      string
	Opts     projector.Options
	Timeouts fsagent.Timeouts

	// Suppressor is the bounce-back suppressor, shared with the paired
	// Outbound for the same Route.
	Suppressor *Suppressor

	mu         sync.Mutex
	timer      *time.Timer
	pending    blob.Ref
	hasPending bool
	stopped    bool
	unsub      func()
}

// StartConsuming subscribes i to its Route on the bus and returns a stop
// handle. It performs no initial fetch; the first restore happens when the
// first ref arrives (or, on a fresh agent, whenever the peer next publishes).
func StartConsuming(ctx context.Context, i *Inbound) (stop func(), err error) {
	if i.Suppressor == nil {
		i.Suppressor = NewSuppressor()
	}

	i.unsub = i.Bus.Subscribe(i.Route, i.onRow)

	return i.stop, nil
}

// onRow is the bus callback: it rejects malformed refs silently, replaces
// any pending ref with the new one, and (re)arms the coalescing timer. Only
// the last ref of a burst survives to be processed.
func (i *Inbound) onRow(row history.Row) {
	if row.RootRef.IsZero() {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.stopped {
		return
	}

	i.pending = row.RootRef
	i.hasPending = true

	if i.timer != nil {
		i.timer.Stop()
	}
	i.timer = time.AfterFunc(i.Timeouts.DebounceMs, i.onTimer)
}

func (i *Inbound) onTimer() {
	i.mu.Lock()
	if i.stopped || !i.hasPending {
		i.mu.Unlock()
		return
	}
	r := i.pending
	i.hasPending = false
	i.mu.Unlock()

	ctx := context.Background()
	if err := fsagent.WithDeadline(ctx, "sync_callback", i.Timeouts.SyncCallback, func(ctx context.Context) error {
		return i.process(ctx, r)
	}); err != nil {
		log.Printf("inbound reconcile for %s: %s", i.Route, err)
	}
}

// process runs the steady-state work for the surviving ref r: pause the
// watcher, fetch, diff, restore on real difference, and bookkeep with
// notification suppressed, resuming the watcher no matter what happens in
// between.
func (i *Inbound) process(ctx context.Context, r blob.Ref) error {
	if i.Watcher != nil {
		i.Watcher.Pause()
		defer i.Watcher.Resume()
	}

	var incoming *treestore.Tree
	err := fsagent.WithDeadline(ctx, "fetch_tree", i.Timeouts.FetchTree, func(ctx context.Context) error {
		t, err := i.Trees.Fetch(ctx, r)
		incoming = t
		return err
	})
	if err != nil {
		return err
	}

	var current *treestore.Tree
	err = fsagent.WithDeadline(ctx, "extract", i.Timeouts.Extract, func(ctx context.Context) error {
		t, err := projector.Extract(ctx, i.Blobs, i.Dir, i.Opts)
		current = t
		return err
	})
	if err != nil {
		return err
	}

	incomingKey := treestore.ContentKey(incoming)
	if treestore.ContentKey(current) == incomingKey {
		// Inbound bounce-back gate: the incoming state is already achieved
		// locally. Restoring with CleanTarget here would wrongly delete
		// files created locally during the round trip.
		i.Suppressor.Record(r.String(), incomingKey)
		return nil
	}

	err = fsagent.WithDeadline(ctx, "restore", i.Timeouts.Restore, func(ctx context.Context) error {
		return projector.Restore(ctx, i.Blobs, incoming, i.Dir, i.Opts)
	})
	if err != nil {
		return err
	}

	var restored *treestore.Tree
	err = fsagent.WithDeadline(ctx, "extract", i.Timeouts.Extract, func(ctx context.Context) error {
		t, err := projector.Extract(ctx, i.Blobs, i.Dir, i.Opts)
		restored = t
		return err
	})
	if err != nil {
		return err
	}

	var root blob.Ref
	err = fsagent.WithDeadline(ctx, "fetch_tree", i.Timeouts.FetchTree, func(ctx context.Context) error {
		row, err := i.Trees.Insert(ctx, i.Route, restored, true)
		root = row.RootRef
		return err
	})
	if err != nil {
		return err
	}

	i.Suppressor.Record(root.String(), treestore.ContentKey(restored))
	return nil
}

// stop cancels the pending timer and unsubscribes from the bus.
func (i *Inbound) stop() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.stopped {
		return
	}
	i.stopped = true
	if i.timer != nil {
		i.timer.Stop()
	}
	if i.unsub != nil {
		i.unsub()
	}
}
