package treestore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/bus"
	"github.com/rljson/fs-agent/fsagent"
	"github.com/rljson/fs-agent/history"
)

// Store is the tree store adapter: an ordered container of tree
// nodes (backed by a content-addressed blob.Store, since node hashes and
// blob refs share the same sha256 addressing scheme, so nodes are simply
// blobs of their own canonical encoding), an insert-history log, and a
// notification bus.
type Store struct {
	Nodes   blob.Store
	History history.Log
	Bus     bus.Bus

	DBQueryTimeout   time.Duration
	FetchTreeTimeout time.Duration

	// FetchConcurrency bounds how many node fetches run at once during
	// Fetch's worklist walk. Zero means a reasonable default (8).
	FetchConcurrency int
}

// New produces a Store with its default deadlines.
func New(nodes blob.Store, log history.Log, b bus.Bus) *Store {
	return &Store{
		Nodes:            nodes,
		History:          log,
		Bus:              b,
		DBQueryTimeout:   10000 * time.Millisecond,
		FetchTreeTimeout: 20000 * time.Millisecond,
		FetchConcurrency: 8,
	}
}

// Insert writes all non-root nodes first, then the root node last, so
// that any observer who sees the root also sees every child it
// references. It then records a fresh insert-history row and, unless
// suppressNotification is set, publishes it on the bus at route. The
// returned row is always recorded, whether or not it was published.
func (s *Store) Insert(ctx context.Context, route string, t *Tree, suppressNotification bool) (history.Row, error) {
	if err := t.Validate(); err != nil {
		return history.Row{}, err
	}

	err := fsagent.WithDeadline(ctx, "fetch_tree", s.FetchTreeTimeout, func(ctx context.Context) error {
		written := make(map[blob.Ref]bool)
		var writeNonRoot func(ref blob.Ref) error
		writeNonRoot = func(ref blob.Ref) error {
			if written[ref] {
				return nil
			}
			n := t.Nodes[ref]
			if n.Kind == Directory {
				for _, c := range n.Children {
					if err := writeNonRoot(c); err != nil {
						return err
					}
				}
			}
			if ref == t.RootHash {
				return nil
			}
			b, err := n.Bytes()
			if err != nil {
				return err
			}
			if _, _, err := s.Nodes.Put(ctx, b); err != nil {
				return errors.Wrapf(err, "storing node %s", ref)
			}
			written[ref] = true
			return nil
		}
		if err := writeNonRoot(t.RootHash); err != nil {
			return err
		}

		root := t.Nodes[t.RootHash]
		b, err := root.Bytes()
		if err != nil {
			return err
		}
		_, _, err = s.Nodes.Put(ctx, b)
		return errors.Wrap(err, "storing root node")
	})
	if err != nil {
		return history.Row{}, fsagent.Wrap(fsagent.StoreFailure, "inserting tree", err)
	}

	row, err := s.History.Append(ctx, route, t.RootHash)
	if err != nil {
		return history.Row{}, fsagent.Wrap(fsagent.StoreFailure, "recording insert-history row", err)
	}

	if !suppressNotification && s.Bus != nil {
		if err := s.Bus.Publish(ctx, route, row); err != nil {
			return history.Row{}, fsagent.Wrap(fsagent.StoreFailure, "publishing root", err)
		}
	}

	return row, nil
}

// Fetch recursively retrieves, starting from root, every node reachable
// by child edges, using a worklist and a seen set to avoid redundant
// fetches and to terminate on shared subtrees.
func (s *Store) Fetch(ctx context.Context, root blob.Ref) (*Tree, error) {
	t := NewTree()
	t.RootHash = root

	err := fsagent.WithDeadline(ctx, "fetch_tree", s.FetchTreeTimeout, func(ctx context.Context) error {
		concurrency := s.FetchConcurrency
		if concurrency <= 0 {
			concurrency = 8
		}

		var (
			seen    = map[blob.Ref]bool{root: true}
			pending = []blob.Ref{root}
			isRoot  = true
		)

		for len(pending) > 0 {
			batch := pending
			pending = nil

			g, gctx := errgroup.WithContext(ctx)
			sem := make(chan struct{}, concurrency)

			type result struct {
				ref  blob.Ref
				node *Node
			}
			results := make([]result, len(batch))

			for i, ref := range batch {
				i, ref, atRoot := i, ref, isRoot
				g.Go(func() error {
					sem <- struct{}{}
					defer func() { <-sem }()

					n, err := s.fetchNode(gctx, ref, atRoot)
					if err != nil {
						return err
					}
					results[i] = result{ref: ref, node: n}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			isRoot = false

			for _, r := range results {
				t.Nodes[r.ref] = r.node
				if r.node.Kind == Directory {
					for _, c := range r.node.Children {
						if !seen[c] {
							seen[c] = true
							pending = append(pending, c)
						}
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) fetchNode(ctx context.Context, ref blob.Ref, atRoot bool) (*Node, error) {
	var node *Node
	err := fsagent.WithDeadline(ctx, "db_query", s.DBQueryTimeout, func(ctx context.Context) error {
		b, err := s.Nodes.Get(ctx, ref)
		if errors.Is(err, blob.ErrNotFound) {
			if atRoot {
				return fsagent.New(fsagent.NotFound, "root hash not found")
			}
			return fsagent.New(fsagent.Incomplete, "child hash not found: "+ref.String())
		}
		if err != nil {
			return fsagent.Wrap(fsagent.StoreFailure, "fetching node "+ref.String(), err)
		}
		node, err = decodeNode(b)
		return err
	})
	return node, err
}
