package treestore

import (
	"testing"

	"github.com/rljson/fs-agent/blob"
)

func mustAdd(t *testing.T, tree *Tree, n *Node) blob.Ref {
	t.Helper()
	h, err := tree.AddNode(n)
	if err != nil {
		t.Fatalf("AddNode: %s", err)
	}
	return h
}

func smallTree(t *testing.T) (*Tree, blob.Ref) {
	t.Helper()
	tree := NewTree()

	fileBlob := blob.Blob("hello").Ref()
	fileHash := mustAdd(t, tree, &Node{
		Kind:         File,
		Name:         "a.txt",
		RelativePath: "a.txt",
		MTimeMs:      1000,
		BlobID:       fileBlob,
		Size:         5,
	})

	rootHash := mustAdd(t, tree, &Node{
		Kind:         Directory,
		Name:         ".",
		RelativePath: ".",
		MTimeMs:      1000,
		Children:     []blob.Ref{fileHash},
	})
	tree.RootHash = rootHash

	return tree, rootHash
}

func TestValidateRequiresRootAndClosure(t *testing.T) {
	empty := NewTree()
	if err := empty.Validate(); err == nil {
		t.Fatal("expected error validating empty tree")
	}

	tree, _ := smallTree(t)
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate: %s", err)
	}

	dangling := NewTree()
	missing := blob.Blob("nonexistent").Ref()
	root := mustAdd(t, dangling, &Node{
		Kind:         Directory,
		Name:         ".",
		RelativePath: ".",
		Children:     []blob.Ref{missing},
	})
	dangling.RootHash = root
	if err := dangling.Validate(); err == nil {
		t.Fatal("expected error for dangling child reference")
	}
}

func TestAddNodeDedupesByContent(t *testing.T) {
	tree := NewTree()
	n1 := &Node{Kind: File, Name: "x", RelativePath: "x", MTimeMs: 1, BlobID: blob.Blob("x").Ref(), Size: 1}
	n2 := &Node{Kind: File, Name: "x", RelativePath: "x", MTimeMs: 1, BlobID: blob.Blob("x").Ref(), Size: 1}

	h1, err := tree.AddNode(n1)
	if err != nil {
		t.Fatalf("AddNode: %s", err)
	}
	h2, err := tree.AddNode(n2)
	if err != nil {
		t.Fatalf("AddNode: %s", err)
	}
	if h1 != h2 {
		t.Fatalf("identical content hashed differently: %s vs %s", h1, h2)
	}
	if len(tree.Nodes) != 1 {
		t.Fatalf("expected one node in tree, got %d", len(tree.Nodes))
	}
}

func TestContentKeyIgnoresMTime(t *testing.T) {
	build := func(mtime int64) *Tree {
		tree := NewTree()
		fileHash := mustAdd(t, tree, &Node{
			Kind:         File,
			Name:         "a.txt",
			RelativePath: "a.txt",
			MTimeMs:      mtime,
			BlobID:       blob.Blob("hello").Ref(),
			Size:         5,
		})
		root := mustAdd(t, tree, &Node{
			Kind:         Directory,
			Name:         ".",
			RelativePath: ".",
			MTimeMs:      mtime,
			Children:     []blob.Ref{fileHash},
		})
		tree.RootHash = root
		return tree
	}

	a := build(1000)
	b := build(9999)

	if ContentKey(a) != ContentKey(b) {
		t.Fatal("content key should be insensitive to mtime")
	}

	// A changed blob_id, however, must change the content key.
	tree := NewTree()
	fileHash := mustAdd(t, tree, &Node{
		Kind:         File,
		Name:         "a.txt",
		RelativePath: "a.txt",
		MTimeMs:      1000,
		BlobID:       blob.Blob("different").Ref(),
		Size:         9,
	})
	root := mustAdd(t, tree, &Node{
		Kind:         Directory,
		Name:         ".",
		RelativePath: ".",
		MTimeMs:      1000,
		Children:     []blob.Ref{fileHash},
	})
	tree.RootHash = root

	if ContentKey(a) == ContentKey(tree) {
		t.Fatal("content key should change when file content changes")
	}
}

func TestContentKeyExcludesRootDirectoryItself(t *testing.T) {
	tree, _ := smallTree(t)
	key := ContentKey(tree)
	if key != "a.txt:"+blob.Blob("hello").Ref().String() {
		t.Fatalf("unexpected content key: %q", key)
	}
}
