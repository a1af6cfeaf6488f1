package watcher

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"
)

func waitForEvent(t *testing.T, events <-chan string, timeout time.Duration) (string, bool) {
	t.Helper()
	select {
	case path := <-events:
		return path, true
	case <-time.After(timeout):
		return "", false
	}
}

func TestWatchDeliversEventsForChanges(t *testing.T) {
	dir := t.TempDir()
	w, err := Watch(dir)
	if err != nil {
		t.Fatalf("Watch: %s", err)
	}
	defer w.Stop()

	events := make(chan string, 16)
	w.OnEvent(func(path string) { events <- path })

	if err := ioutil.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatalf("writing file: %s", err)
	}

	if _, ok := waitForEvent(t, events, 3*time.Second); !ok {
		t.Fatal("expected an event after creating a file")
	}
}

func TestPauseSuppressesEventsUntilResume(t *testing.T) {
	dir := t.TempDir()
	w, err := Watch(dir)
	if err != nil {
		t.Fatalf("Watch: %s", err)
	}
	defer w.Stop()

	events := make(chan string, 16)
	w.OnEvent(func(path string) { events <- path })

	w.Pause()
	if err := ioutil.WriteFile(filepath.Join(dir, "paused.txt"), []byte("hidden"), 0644); err != nil {
		t.Fatalf("writing file: %s", err)
	}
	// Give the dispatch loop a chance to see (and discard) the event.
	time.Sleep(300 * time.Millisecond)

	w.Resume()
	if err := ioutil.WriteFile(filepath.Join(dir, "resumed.txt"), []byte("visible"), 0644); err != nil {
		t.Fatalf("writing file: %s", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	sawResumed := false
	for time.Now().Before(deadline) && !sawResumed {
		path, ok := waitForEvent(t, events, deadline.Sub(time.Now()))
		if !ok {
			break
		}
		if filepath.Base(path) == "resumed.txt" {
			sawResumed = true
		}
		if filepath.Base(path) == "paused.txt" {
			t.Fatal("event for change made while paused should have been dropped")
		}
	}
	if !sawResumed {
		t.Fatal("expected an event for the change made after Resume")
	}
}

func TestStopIsIdempotentAndHaltsDispatch(t *testing.T) {
	dir := t.TempDir()
	w, err := Watch(dir)
	if err != nil {
		t.Fatalf("Watch: %s", err)
	}
	w.Stop()
	w.Stop()
}
