package gc

import (
	"context"
	"testing"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/blob/mem"
	"github.com/rljson/fs-agent/treestore"
)

type deleterStore struct {
	*mem.Store
	deleted map[blob.Ref]bool
}

func newDeleterStore() *deleterStore {
	return &deleterStore{Store: mem.New(), deleted: make(map[blob.Ref]bool)}
}

func (s *deleterStore) Delete(_ context.Context, ref blob.Ref) error {
	s.deleted[ref] = true
	return nil
}

// buildTree stores a small two-file tree in s and returns its root ref.
func buildTree(t *testing.T, s blob.Store) blob.Ref {
	t.Helper()
	ctx := context.Background()

	keepBlob, _, err := s.Put(ctx, blob.Blob("keep me"))
	if err != nil {
		t.Fatalf("Put: %s", err)
	}

	fileNode := &treestore.Node{
		Kind:         treestore.File,
		Name:         "a.txt",
		RelativePath: "a.txt",
		BlobID:       keepBlob,
		Size:         7,
	}
	fileBytes, err := fileNode.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %s", err)
	}
	fileRef, _, err := s.Put(ctx, fileBytes)
	if err != nil {
		t.Fatalf("Put: %s", err)
	}

	rootNode := &treestore.Node{
		Kind:         treestore.Directory,
		Name:         ".",
		RelativePath: ".",
		Children:     []blob.Ref{fileRef},
	}
	rootBytes, err := rootNode.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %s", err)
	}
	rootRef, _, err := s.Put(ctx, rootBytes)
	if err != nil {
		t.Fatalf("Put: %s", err)
	}

	return rootRef
}

func TestProtectTreeKeepsEveryReachableRef(t *testing.T) {
	ctx := context.Background()
	s := newDeleterStore()
	root := buildTree(t, s)

	k := NewMemKeep()
	if err := ProtectTree(ctx, s, k, root); err != nil {
		t.Fatalf("ProtectTree: %s", err)
	}

	ok, err := k.Contains(ctx, root)
	if err != nil || !ok {
		t.Fatalf("root should be kept: ok=%v err=%v", ok, err)
	}

	var node *treestore.Node
	b, err := s.Get(ctx, root)
	if err != nil {
		t.Fatalf("Get root: %s", err)
	}
	node, err = treestore.DecodeNode(b)
	if err != nil {
		t.Fatalf("DecodeNode: %s", err)
	}
	for _, c := range node.Children {
		ok, err := k.Contains(ctx, c)
		if err != nil || !ok {
			t.Fatalf("child %s should be kept: ok=%v err=%v", c, ok, err)
		}
		var childBytes blob.Blob
		childBytes, err = s.Get(ctx, c)
		if err != nil {
			t.Fatalf("Get child: %s", err)
		}
		childNode, err := treestore.DecodeNode(childBytes)
		if err != nil {
			t.Fatalf("DecodeNode child: %s", err)
		}
		ok, err = k.Contains(ctx, childNode.BlobID)
		if err != nil || !ok {
			t.Fatalf("file blob %s should be kept: ok=%v err=%v", childNode.BlobID, ok, err)
		}
	}
}

func TestRunDeletesOnlyUnprotectedRefs(t *testing.T) {
	ctx := context.Background()
	s := newDeleterStore()
	root := buildTree(t, s)

	orphan, _, err := s.Put(ctx, blob.Blob("orphaned blob"))
	if err != nil {
		t.Fatalf("Put: %s", err)
	}

	k := NewMemKeep()
	if err := ProtectTree(ctx, s, k, root); err != nil {
		t.Fatalf("ProtectTree: %s", err)
	}

	counting := &CountingStore{DeleterStore: s}
	if err := Run(ctx, counting, k); err != nil {
		t.Fatalf("Run: %s", err)
	}

	if !s.deleted[orphan] {
		t.Fatal("orphaned blob should have been deleted")
	}
	if s.deleted[root] {
		t.Fatal("root should not have been deleted")
	}
	if counting.Deletions != 1 {
		t.Fatalf("got %d deletions, want 1", counting.Deletions)
	}
}
