package treestore

import (
	"sort"
	"strings"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/fsagent"
)

// Tree is a self-contained collection of nodes addressed by hash, plus a
// root hash. Every hash referenced as a child, or as the root, must exist
// as a key in Nodes.
type Tree struct {
	RootHash blob.Ref
	Nodes    map[blob.Ref]*Node
}

// NewTree produces a new, empty Tree ready to be built up by AddNode.
func NewTree() *Tree {
	return &Tree{Nodes: make(map[blob.Ref]*Node)}
}

// AddNode computes n's hash, stores n under that hash (nodes are
// deduplicated by content, so adding an already-present node is a no-op),
// and returns the hash.
func (t *Tree) AddNode(n *Node) (blob.Ref, error) {
	h, err := n.ComputeHash()
	if err != nil {
		return blob.Ref{}, err
	}
	n.Hash = h
	if _, ok := t.Nodes[h]; !ok {
		t.Nodes[h] = n
	}
	return h, nil
}

// Validate checks the tree's invariants: root presence and child closure.
func (t *Tree) Validate() error {
	if len(t.Nodes) == 0 {
		return fsagent.New(fsagent.InvalidInput, "tree has no nodes")
	}
	if t.RootHash.IsZero() {
		return fsagent.New(fsagent.InvalidInput, "tree has no root hash")
	}
	if _, ok := t.Nodes[t.RootHash]; !ok {
		return fsagent.New(fsagent.InvalidInput, "root hash not present among tree nodes")
	}
	for ref, n := range t.Nodes {
		if n.Kind != Directory {
			continue
		}
		for _, c := range n.Children {
			if _, ok := t.Nodes[c]; !ok {
				return fsagent.New(fsagent.InvalidInput, "directory "+ref.String()+" references missing child "+c.String())
			}
		}
	}
	return nil
}

// ContentKey computes a tree's content key: a deterministic string derived
// by sorting the tree's files and non-root directories by relative_path
// and concatenating "path:blob_id" (files) or "path:<dir>" (directories).
func ContentKey(t *Tree) string {
	type entry struct {
		path string
		text string
	}

	var entries []entry
	root := t.Nodes[t.RootHash]
	var walk func(n *Node, isRoot bool)
	walk = func(n *Node, isRoot bool) {
		if n == nil {
			return
		}
		switch n.Kind {
		case File:
			entries = append(entries, entry{path: n.RelativePath, text: n.RelativePath + ":" + n.BlobID.String()})
		case Directory:
			if !isRoot {
				entries = append(entries, entry{path: n.RelativePath, text: n.RelativePath + ":<dir>"})
			}
			for _, c := range n.Children {
				walk(t.Nodes[c], false)
			}
		}
	}
	walk(root, true)

	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.text
	}
	return strings.Join(texts, "\n")
}
