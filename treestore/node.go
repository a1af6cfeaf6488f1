// Package treestore implements the tree data model (tree node, tree,
// content key) and the tree store adapter on top of an external
// content-addressed blob store, an insert-history log, and a notification
// bus.
package treestore

import (
	canonicaljson "github.com/gibson042/canonicaljson-go"
	"github.com/pkg/errors"

	"github.com/rljson/fs-agent/blob"
)

// Kind distinguishes a directory node from a file node.
type Kind int

const (
	// Directory nodes have Children and no BlobID.
	Directory Kind = iota
	// File nodes have a BlobID and Size, and no Children.
	File
)

// Node is one entry of a tree: a directory or a file. Hash is a
// deterministic function of every other field, computed by ComputeHash.
type Node struct {
	Kind         Kind
	Name         string
	RelativePath string
	MTimeMs      int64
	Hash         blob.Ref

	// Directory only, in the order the children were built.
	Children []blob.Ref

	// File only.
	BlobID blob.Ref
	Size   int64
}

// encoding is the canonical, hash-stable wire shape of a Node. Field names
// are fixed and canonicaljson sorts object keys, so two Nodes built from
// identical logical content always encode identically regardless of how
// the in-memory Node was assembled.
type encoding struct {
	Kind         string   `json:"kind"`
	Name         string   `json:"name"`
	RelativePath string   `json:"relative_path"`
	MTimeMs      int64    `json:"mtime"`
	Children     []string `json:"children,omitempty"`
	BlobID       string   `json:"blob_id,omitempty"`
	Size         int64    `json:"size,omitempty"`
}

func (n *Node) encode() encoding {
	e := encoding{
		Name:         n.Name,
		RelativePath: n.RelativePath,
		MTimeMs:      n.MTimeMs,
	}
	switch n.Kind {
	case Directory:
		e.Kind = "directory"
		for _, c := range n.Children {
			e.Children = append(e.Children, c.String())
		}
	case File:
		e.Kind = "file"
		e.BlobID = n.BlobID.String()
		e.Size = n.Size
	}
	return e
}

// Bytes returns the canonical encoding of n, the same bytes ComputeHash
// hashes and the same bytes stored in the backing blob store.
func (n *Node) Bytes() ([]byte, error) {
	b, err := canonicaljson.Marshal(n.encode())
	return b, errors.Wrap(err, "encoding node")
}

// ComputeHash computes n's node hash from every field but Hash itself.
func (n *Node) ComputeHash() (blob.Ref, error) {
	b, err := n.Bytes()
	if err != nil {
		return blob.Ref{}, err
	}
	return blob.Blob(b).Ref(), nil
}

// DecodeNode parses the bytes produced by Node.Bytes back into a Node,
// setting Hash to the ref those bytes hash to (i.e. the key they were
// stored under). It is exported for callers outside this package, such as
// blob/gc, that need to walk tree structure without going through a
// Store's deadline-wrapped Fetch.
func DecodeNode(b []byte) (*Node, error) {
	return decodeNode(b)
}

func decodeNode(b []byte) (*Node, error) {
	var e encoding
	if err := canonicaljson.Unmarshal(b, &e); err != nil {
		return nil, errors.Wrap(err, "decoding node")
	}

	n := &Node{
		Name:         e.Name,
		RelativePath: e.RelativePath,
		MTimeMs:      e.MTimeMs,
		Hash:         blob.Blob(b).Ref(),
	}
	switch e.Kind {
	case "directory":
		n.Kind = Directory
		for _, c := range e.Children {
			ref, err := blob.RefFromHex(c)
			if err != nil {
				return nil, errors.Wrap(err, "decoding child ref")
			}
			n.Children = append(n.Children, ref)
		}
	case "file":
		n.Kind = File
		ref, err := blob.RefFromHex(e.BlobID)
		if err != nil {
			return nil, errors.Wrap(err, "decoding blob_id")
		}
		n.BlobID = ref
		n.Size = e.Size
	default:
		return nil, errors.Errorf("unrecognized node kind %q", e.Kind)
	}
	return n, nil
}
