package file

import (
	"context"
	"testing"

	"github.com/rljson/fs-agent/blob"
)

func TestPutGetDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	ref, added, err := s.Put(ctx, blob.Blob("payload"))
	if err != nil {
		t.Fatalf("Put: %s", err)
	}
	if !added {
		t.Fatal("first Put should report added")
	}

	got, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get: %s", err)
	}
	if string(got) != "payload" {
		t.Fatalf("got %q, want %q", got, "payload")
	}

	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete: %s", err)
	}
	if _, err := s.Get(ctx, ref); err != blob.ErrNotFound {
		t.Fatalf("Get after Delete: got %v, want blob.ErrNotFound", err)
	}
}

func TestDeleteOfAbsentRefIsNotAnError(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Delete(context.Background(), blob.Blob("never stored").Ref()); err != nil {
		t.Fatalf("Delete of absent ref: %s", err)
	}
}

func TestPutTwiceReportsNotAdded(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	if _, added, err := s.Put(ctx, blob.Blob("x")); err != nil || !added {
		t.Fatalf("first Put: added=%v err=%v", added, err)
	}
	if _, added, err := s.Put(ctx, blob.Blob("x")); err != nil || added {
		t.Fatalf("second Put: added=%v err=%v", added, err)
	}
}

func TestListRefsAscendingOrder(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	for _, content := range []string{"one", "two", "three", "four"} {
		if _, _, err := s.Put(ctx, blob.Blob(content)); err != nil {
			t.Fatalf("Put: %s", err)
		}
	}

	var seen []blob.Ref
	err := s.ListRefs(ctx, blob.Zero, func(ref blob.Ref) error {
		seen = append(seen, ref)
		return nil
	})
	if err != nil {
		t.Fatalf("ListRefs: %s", err)
	}
	if len(seen) != 4 {
		t.Fatalf("got %d refs, want 4", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if !seen[i-1].Less(seen[i]) {
			t.Fatalf("refs not ascending: %s then %s", seen[i-1], seen[i])
		}
	}
}

func TestListRefsOnMissingRootIsEmpty(t *testing.T) {
	s := New(t.TempDir() + "/does-not-exist")
	var seen []blob.Ref
	err := s.ListRefs(context.Background(), blob.Zero, func(ref blob.Ref) error {
		seen = append(seen, ref)
		return nil
	})
	if err != nil {
		t.Fatalf("ListRefs: %s", err)
	}
	if len(seen) != 0 {
		t.Fatalf("expected no refs from a nonexistent root, got %d", len(seen))
	}
}
