// Package gc implements mark-and-sweep garbage collection over a
// blob.Store. Reachable refs are marked by walking the sync engine's own
// tree shape (directory children, file blob refs), since tree nodes here
// are canonical JSON rather than a generated proto message.
//
// Nothing in the agent itself calls Run: an agent must never delete blobs
// on its own. Run is for a separate maintenance tool (cmd/fsgc) run
// out-of-band against the shared store.
package gc

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/treestore"
)

// Keep is a set of refs to protect from garbage collection.
type Keep interface {
	// Add adds ref to the Keep. It returns whether ref was newly added.
	Add(ctx context.Context, ref blob.Ref) (bool, error)

	// Contains tells whether ref is in the Keep.
	Contains(ctx context.Context, ref blob.Ref) (bool, error)
}

// DeleterStore is a blob.Store that can also delete a blob by ref.
type DeleterStore interface {
	blob.Store
	Delete(ctx context.Context, ref blob.Ref) error
}

// ProtectTree adds root, and every node and blob ref reachable from it, to
// k. root is assumed to be a tree-store root hash; its nodes are fetched
// with the same node-by-hash Get contract the tree store itself uses, so
// any ref this can't decode as a tree node is treated as a leaf blob and
// simply kept.
func ProtectTree(ctx context.Context, g blob.Getter, k Keep, root blob.Ref) error {
	added, err := k.Add(ctx, root)
	if err != nil {
		return errors.Wrapf(err, "adding %s to keep set", root)
	}
	if !added {
		return nil
	}

	b, err := g.Get(ctx, root)
	if errors.Is(err, blob.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "getting %s", root)
	}

	node, err := treestore.DecodeNode(b)
	if err != nil {
		// root doesn't decode as a tree node; treat it as an opaque leaf
		// blob rather than failing the whole walk.
		return nil
	}

	switch node.Kind {
	case treestore.File:
		_, err := k.Add(ctx, node.BlobID)
		return errors.Wrapf(err, "adding blob %s to keep set", node.BlobID)
	case treestore.Directory:
		for _, c := range node.Children {
			if err := ProtectTree(ctx, g, k, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run deletes every ref in store not protected by k.
func Run(ctx context.Context, store DeleterStore, k Keep) error {
	var toDelete []blob.Ref

	err := store.ListRefs(ctx, blob.Zero, func(ref blob.Ref) error {
		ok, err := k.Contains(ctx, ref)
		if err != nil {
			return errors.Wrapf(err, "checking ref %s", ref)
		}
		if !ok {
			toDelete = append(toDelete, ref)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, ref := range toDelete {
		if err := store.Delete(ctx, ref); err != nil {
			return errors.Wrapf(err, "deleting ref %s", ref)
		}
	}
	return nil
}

// CountingStore is a DeleterStore decorator that counts refs seen and
// deletions performed during a call to Run.
type CountingStore struct {
	DeleterStore
	Refs, Deletions int
}

// ListRefs implements blob.Store, counting every ref f is called with.
func (s *CountingStore) ListRefs(ctx context.Context, start blob.Ref, f func(blob.Ref) error) error {
	return s.DeleterStore.ListRefs(ctx, start, func(ref blob.Ref) error {
		s.Refs++
		return f(ref)
	})
}

// Delete implements DeleterStore, counting the call before delegating.
func (s *CountingStore) Delete(ctx context.Context, ref blob.Ref) error {
	s.Deletions++
	return s.DeleterStore.Delete(ctx, ref)
}
