package transform

import (
	"context"
	"testing"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/blob/mem"
)

func TestLZWRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(mem.New(), LZW{Order: 0})

	payload := blob.Blob("the quick brown fox jumps over the lazy dog, repeatedly, repeatedly, repeatedly")
	ref, added, err := s.Put(ctx, payload)
	if err != nil {
		t.Fatalf("Put: %s", err)
	}
	if !added {
		t.Fatal("first Put should report added")
	}
	if ref != payload.Ref() {
		t.Fatalf("Put should return the ref of the untransformed content, got %s want %s", ref, payload.Ref())
	}

	got, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get: %s", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestGetOfUnknownRefFails(t *testing.T) {
	s := New(mem.New(), LZW{Order: 0})
	if _, err := s.Get(context.Background(), blob.Blob("never put").Ref()); err == nil {
		t.Fatal("expected an error fetching an unknown ref")
	}
}
