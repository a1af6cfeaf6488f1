package reconcile

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/rljson/fs-agent/blob/mem"
	"github.com/rljson/fs-agent/bus/membus"
	"github.com/rljson/fs-agent/fsagent"
	"github.com/rljson/fs-agent/history"
	historymem "github.com/rljson/fs-agent/history/mem"
	"github.com/rljson/fs-agent/projector"
	"github.com/rljson/fs-agent/treestore"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %s", path, err)
	}
}

func newOutboundForDir(dir string) (*Outbound, <-chan history.Row) {
	blobs := mem.New()
	b := membus.New()
	trees := treestore.New(blobs, historymem.New(), b)

	received := make(chan history.Row, 8)
	b.Subscribe("route", func(row history.Row) { received <- row })

	o := &Outbound{
		Blobs:    blobs,
		Trees:    trees,
		Bus:      b,
		Route:    "route",
		Dir:      dir,
		Opts:     projector.Options{MaxDepth: -1},
		Timeouts: fsagent.DefaultTimeouts(),
	}
	o.Timeouts.DebounceMs = 30 * time.Millisecond
	return o, received
}

func TestStartPublishingPerformsInitialPublish(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")

	o, received := newOutboundForDir(dir)
	stop, err := StartPublishing(context.Background(), o)
	if err != nil {
		t.Fatalf("StartPublishing: %s", err)
	}
	defer stop()

	select {
	case row := <-received:
		if row.Route != "route" {
			t.Fatalf("got route %q, want route", row.Route)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial publish")
	}
}

func TestReconcileOnceSuppressesUnchangedContentKey(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")

	o, received := newOutboundForDir(dir)
	stop, err := StartPublishing(context.Background(), o)
	if err != nil {
		t.Fatalf("StartPublishing: %s", err)
	}
	defer stop()

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial publish")
	}

	// No real change: rewriting identical content must not cause a republish.
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")

	if err := o.reconcileOnce(context.Background()); err != nil {
		t.Fatalf("reconcileOnce: %s", err)
	}

	select {
	case row := <-received:
		t.Fatalf("unexpected republish of unchanged content: %s", row.RootRef)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestReconcileOncePublishesOnRealChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")

	o, received := newOutboundForDir(dir)
	stop, err := StartPublishing(context.Background(), o)
	if err != nil {
		t.Fatalf("StartPublishing: %s", err)
	}
	defer stop()

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial publish")
	}

	writeFile(t, filepath.Join(dir, "a.txt"), "goodbye")

	if err := o.reconcileOnce(context.Background()); err != nil {
		t.Fatalf("reconcileOnce: %s", err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a republish after a real content change")
	}
}

func TestOnEventDebouncesBurstIntoOneReconcile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")

	o, received := newOutboundForDir(dir)
	stop, err := StartPublishing(context.Background(), o)
	if err != nil {
		t.Fatalf("StartPublishing: %s", err)
	}
	defer stop()

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial publish")
	}

	writeFile(t, filepath.Join(dir, "a.txt"), "v1")
	o.onEvent()
	writeFile(t, filepath.Join(dir, "a.txt"), "v2")
	o.onEvent()
	writeFile(t, filepath.Join(dir, "a.txt"), "v3")
	o.onEvent()

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("expected one coalesced publish after the burst")
	}

	select {
	case row := <-received:
		t.Fatalf("expected the burst to coalesce into a single publish, got a second one: %s", row.RootRef)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestStopCancelsPendingTimer(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")

	o, received := newOutboundForDir(dir)
	stop, err := StartPublishing(context.Background(), o)
	if err != nil {
		t.Fatalf("StartPublishing: %s", err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial publish")
	}

	writeFile(t, filepath.Join(dir, "a.txt"), "changed")
	o.onEvent()
	stop()

	select {
	case row := <-received:
		t.Fatalf("unexpected publish after stop: %s", row.RootRef)
	case <-time.After(300 * time.Millisecond):
	}
}
