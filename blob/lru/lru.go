// Package lru implements a blob store that acts as a least-recently-used
// read cache for a nested blob store. Writes pass through to the nested
// store.
package lru

import (
	"context"
	"encoding/json"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/blob/registry"
)

var _ blob.Store = &Store{}

// Store caches up to a fixed number of blobs in memory in front of a
// nested blob.Store.
type Store struct {
	c *lru.Cache // Ref -> Blob
	s blob.Store
}

// New produces a new Store backed by s, caching up to size blobs.
func New(s blob.Store, size int) (*Store, error) {
	c, err := lru.New(size)
	return &Store{s: s, c: c}, err
}

// Get gets the blob with hash ref.
func (s *Store) Get(ctx context.Context, ref blob.Ref) (blob.Blob, error) {
	if cached, ok := s.c.Get(ref); ok {
		return cached.(blob.Blob), nil
	}
	b, err := s.s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	s.c.Add(ref, b)
	return b, nil
}

// Put adds a blob to the nested store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b blob.Blob) (blob.Ref, bool, error) {
	ref := b.Ref()
	if _, ok := s.c.Get(ref); ok {
		return ref, false, nil
	}
	ref, added, err := s.s.Put(ctx, b)
	if err != nil {
		return ref, added, err
	}
	s.c.Add(ref, b)
	return ref, added, nil
}

// ListRefs delegates to the nested store.
func (s *Store) ListRefs(ctx context.Context, start blob.Ref, f func(blob.Ref) error) error {
	return s.s.ListRefs(ctx, start, f)
}

func init() {
	registry.Register("lru", func(ctx context.Context, conf map[string]interface{}) (blob.Store, error) {
		sizeNum, ok := conf["size"].(json.Number)
		if !ok {
			return nil, errors.New(`missing "size" parameter`)
		}
		size, err := sizeNum.Int64()
		if err != nil {
			return nil, errors.Wrapf(err, "parsing size %v", sizeNum)
		}

		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.New(`"nested" parameter missing "type"`)
		}
		nestedStore, err := registry.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		return New(nestedStore, int(size))
	})
}
