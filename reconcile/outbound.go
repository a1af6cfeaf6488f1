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

// Outbound is the outbound reconciler: watch, extract, content-dedup,
// insert, publish.
type Outbound struct {
	Blobs      blob.Store
	Trees      *treestore.Store
	Bus        bus.Bus
	Watcher    *watcher.Watcher
	Route      string
	Dir        string
	Opts       projector.Options
	Timeouts   fsagent.Timeouts
	RequireAck bool

	// Suppressor is the bounce-back suppressor. It must be the same
	// instance given to the paired Inbound for the same Route, so that a
	// restore the Inbound performs is visible to this Outbound's gates.
	Suppressor *Suppressor

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// StartPublishing performs one immediate extract+insert+publish of the
// current directory, arms the watcher, and returns a stop handle.
func StartPublishing(ctx context.Context, o *Outbound) (stop func(), err error) {
	if o.Suppressor == nil {
		o.Suppressor = NewSuppressor()
	}

	if err := o.publishOnce(ctx); err != nil {
		return nil, err
	}

	if o.Watcher != nil {
		o.Watcher.OnEvent(func(string) { o.onEvent() })
	}

	return o.stop, nil
}

func (o *Outbound) publishOnce(ctx context.Context) error {
	tree, err := o.extract(ctx)
	if err != nil {
		return err
	}

	key := treestore.ContentKey(tree)

	var root blob.Ref
	err = fsagent.WithDeadline(ctx, "fetch_tree", o.Timeouts.FetchTree, func(ctx context.Context) error {
		r, err := o.Trees.Insert(ctx, o.Route, tree, true)
		root = r.RootRef
		return err
	})
	if err != nil {
		return err
	}

	if err := o.publish(ctx, root); err != nil {
		return err
	}

	o.Suppressor.Record(root.String(), key)
	return nil
}

func (o *Outbound) extract(ctx context.Context) (*treestore.Tree, error) {
	var tree *treestore.Tree
	err := fsagent.WithDeadline(ctx, "extract", o.Timeouts.Extract, func(ctx context.Context) error {
		t, err := projector.Extract(ctx, o.Blobs, o.Dir, o.Opts)
		tree = t
		return err
	})
	return tree, err
}

func (o *Outbound) publish(ctx context.Context, root blob.Ref) error {
	row := history.Row{Route: o.Route, RootRef: root}
	if o.RequireAck {
		return o.Bus.PublishWithAck(ctx, o.Route, row)
	}
	return o.Bus.Publish(ctx, o.Route, row)
}

// onEvent is the watcher callback: it (re)arms the coalescing debounce
// timer. Only the last event of a burst causes work.
func (o *Outbound) onEvent() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return
	}
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(o.Timeouts.DebounceMs, o.onTimer)
}

func (o *Outbound) onTimer() {
	o.mu.Lock()
	stopped := o.stopped
	o.mu.Unlock()
	if stopped {
		return
	}

	ctx := context.Background()
	if err := o.reconcileOnce(ctx); err != nil {
		log.Printf("outbound reconcile for %s: %s", o.Route, err)
	}
}

// reconcileOnce runs one round of the steady-state coalesced reconcile work.
func (o *Outbound) reconcileOnce(ctx context.Context) error {
	tree, err := o.extract(ctx)
	if err != nil {
		return err
	}

	key := treestore.ContentKey(tree)
	_, lastKey := o.Suppressor.Snapshot()
	if key == lastKey {
		return nil
	}

	var root blob.Ref
	err = fsagent.WithDeadline(ctx, "fetch_tree", o.Timeouts.FetchTree, func(ctx context.Context) error {
		r, err := o.Trees.Insert(ctx, o.Route, tree, true)
		root = r.RootRef
		return err
	})
	if err != nil {
		return err
	}

	lastRoot, _ := o.Suppressor.Snapshot()
	if root.String() == lastRoot {
		return nil
	}

	o.Suppressor.Record(root.String(), key)

	return o.publish(ctx, root)
}

// stop cancels the pending timer and unsubscribes from the watcher.
func (o *Outbound) stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return
	}
	o.stopped = true
	if o.timer != nil {
		o.timer.Stop()
	}
	if o.Watcher != nil {
		o.Watcher.OnEvent(nil)
	}
}
