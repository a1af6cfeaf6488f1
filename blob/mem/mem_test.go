package mem

import (
	"context"
	"testing"

	"github.com/rljson/fs-agent/blob"
)

func TestPutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()

	ref1, added1, err := s.Put(ctx, blob.Blob("hello"))
	if err != nil {
		t.Fatalf("Put: %s", err)
	}
	if !added1 {
		t.Fatal("first Put should report added")
	}

	ref2, added2, err := s.Put(ctx, blob.Blob("hello"))
	if err != nil {
		t.Fatalf("Put: %s", err)
	}
	if added2 {
		t.Fatal("second Put of identical content should report not-added")
	}
	if ref1 != ref2 {
		t.Fatalf("identical content produced different refs: %s vs %s", ref1, ref2)
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), blob.Blob("never stored").Ref())
	if err != blob.ErrNotFound {
		t.Fatalf("got %v, want blob.ErrNotFound", err)
	}
}

func TestGetReturnsWhatWasPut(t *testing.T) {
	ctx := context.Background()
	s := New()
	ref, _, err := s.Put(ctx, blob.Blob("payload"))
	if err != nil {
		t.Fatalf("Put: %s", err)
	}
	got, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get: %s", err)
	}
	if string(got) != "payload" {
		t.Fatalf("got %q, want %q", got, "payload")
	}
}

func TestListRefsOrderedAndBounded(t *testing.T) {
	ctx := context.Background()
	s := New()
	var refs []blob.Ref
	for _, content := range []string{"a", "b", "c"} {
		ref, _, err := s.Put(ctx, blob.Blob(content))
		if err != nil {
			t.Fatalf("Put: %s", err)
		}
		refs = append(refs, ref)
	}

	var seen []blob.Ref
	err := s.ListRefs(ctx, blob.Zero, func(ref blob.Ref) error {
		seen = append(seen, ref)
		return nil
	})
	if err != nil {
		t.Fatalf("ListRefs: %s", err)
	}
	if len(seen) != 3 {
		t.Fatalf("got %d refs, want 3", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if !seen[i-1].Less(seen[i]) {
			t.Fatalf("refs not in ascending order: %s then %s", seen[i-1], seen[i])
		}
	}

	var afterFirst []blob.Ref
	err = s.ListRefs(ctx, seen[0], func(ref blob.Ref) error {
		afterFirst = append(afterFirst, ref)
		return nil
	})
	if err != nil {
		t.Fatalf("ListRefs: %s", err)
	}
	if len(afterFirst) != 2 {
		t.Fatalf("got %d refs after start, want 2", len(afterFirst))
	}
}
