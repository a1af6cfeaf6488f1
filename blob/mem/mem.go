// Package mem implements an in-memory blob store.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/blob/registry"
)

var _ blob.Store = &Store{}

// Store is a memory-based implementation of a blob store.
type Store struct {
	mu    sync.Mutex
	blobs map[blob.Ref]blob.Blob
}

// New produces a new, empty Store.
func New() *Store {
	return &Store{blobs: make(map[blob.Ref]blob.Blob)}
}

// Get gets the blob with hash ref.
func (s *Store) Get(_ context.Context, ref blob.Ref) (blob.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.blobs[ref]; ok {
		return b, nil
	}
	return nil, blob.ErrNotFound
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, b blob.Blob) (blob.Ref, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := b.Ref()
	if _, ok := s.blobs[ref]; ok {
		return ref, false, nil
	}
	cp := make(blob.Blob, len(b))
	copy(cp, b)
	s.blobs[ref] = cp
	return ref, true, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(_ context.Context, start blob.Ref, f func(blob.Ref) error) error {
	s.mu.Lock()
	refs := make([]blob.Ref, 0, len(s.blobs))
	for ref := range s.blobs {
		if ref.Less(start) || ref == start {
			continue
		}
		refs = append(refs, ref)
	}
	s.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })

	for _, ref := range refs {
		if err := f(ref); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	registry.Register("mem", func(context.Context, map[string]interface{}) (blob.Store, error) {
		return New(), nil
	})
}
