// Package agent wires the projector, tree store, bus, watcher, and the
// outbound/inbound reconcilers into one runnable unit rooted at a single
// directory.
package agent

import (
	"context"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/bus"
	"github.com/rljson/fs-agent/fsagent"
	"github.com/rljson/fs-agent/projector"
	"github.com/rljson/fs-agent/reconcile"
	"github.com/rljson/fs-agent/treestore"
	"github.com/rljson/fs-agent/watcher"
)

// Config enumerates the tunable options of an agent's configuration.
type Config struct {
	Ignore         []string
	MaxDepth       int
	FollowSymlinks bool
	CleanTarget    bool
	RequireAck     bool
	Timeouts       fsagent.Timeouts
}

// DefaultConfig returns a Config with the default timeout budgets, no
// ignore patterns, unbounded depth, and both symlink-following and
// clean-target restores turned off.
func DefaultConfig() Config {
	return Config{
		MaxDepth: -1,
		Timeouts: fsagent.DefaultTimeouts(),
	}
}

func (c Config) projectorOptions() projector.Options {
	return projector.Options{
		Ignore:         c.Ignore,
		MaxDepth:       c.MaxDepth,
		FollowSymlinks: c.FollowSymlinks,
		CleanTarget:    c.CleanTarget,
	}
}

// Agent is one participant in the sync mesh: it observes Dir, publishes
// every observed state keyed by Route, and reconciles incoming roots on
// Route against Dir.
type Agent struct {
	Dir   string
	Route string

	Blobs blob.Store
	Trees *treestore.Store
	Bus   bus.Bus

	Config Config

	watcher *watcher.Watcher
	stopOut func()
	stopIn  func()
}

// New constructs an Agent. Start must be called before it does anything.
func New(dir, route string, blobs blob.Store, trees *treestore.Store, b bus.Bus, cfg Config) *Agent {
	return &Agent{
		Dir:    dir,
		Route:  route,
		Blobs:  blobs,
		Trees:  trees,
		Bus:    b,
		Config: cfg,
	}
}

// Start watches Dir, performs one immediate publish of its current state,
// and begins consuming Route from the bus. The outbound and inbound
// reconcilers share one Suppressor, so a restore performed by the inbound
// side is visible to the outbound side's publish gates and vice versa.
// Start surfaces any error from the initial publish to the caller, and
// stops the watcher it created before returning such an error; calling
// Stop afterwards is harmless.
func (a *Agent) Start(ctx context.Context) error {
	w, err := watcher.Watch(a.Dir)
	if err != nil {
		return fsagent.Wrap(fsagent.StoreFailure, "starting watcher on "+a.Dir, err)
	}
	a.watcher = w

	sup := reconcile.NewSuppressor()
	opts := a.Config.projectorOptions()

	in := &reconcile.Inbound{
		Blobs:      a.Blobs,
		Trees:      a.Trees,
		Bus:        a.Bus,
		Watcher:    a.watcher,
		Route:      a.Route,
		Dir:        a.Dir,
		Opts:       opts,
		Timeouts:   a.Config.Timeouts,
		Suppressor: sup,
	}
	stopIn, err := reconcile.StartConsuming(ctx, in)
	if err != nil {
		a.watcher.Stop()
		return err
	}
	a.stopIn = stopIn

	out := &reconcile.Outbound{
		Blobs:      a.Blobs,
		Trees:      a.Trees,
		Bus:        a.Bus,
		Watcher:    a.watcher,
		Route:      a.Route,
		Dir:        a.Dir,
		Opts:       opts,
		Timeouts:   a.Config.Timeouts,
		RequireAck: a.Config.RequireAck,
		Suppressor: sup,
	}
	stopOut, err := reconcile.StartPublishing(ctx, out)
	if err != nil {
		stopIn()
		a.watcher.Stop()
		return err
	}
	a.stopOut = stopOut

	return nil
}

// Stop halts both reconcilers and the watcher. Stop is safe to call more
// than once and on an Agent whose Start failed partway through.
func (a *Agent) Stop() {
	if a.stopOut != nil {
		a.stopOut()
	}
	if a.stopIn != nil {
		a.stopIn()
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}
}
