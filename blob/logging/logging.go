// Package logging implements a blob store that delegates everything to a
// nested store, logging operations as they happen.
package logging

import (
	"context"
	"log"

	"github.com/pkg/errors"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/blob/registry"
)

var _ blob.Store = &Store{}

// Store wraps a nested blob.Store and logs every call.
type Store struct {
	s blob.Store
}

// New produces a new logging Store wrapping s.
func New(s blob.Store) *Store {
	return &Store{s: s}
}

// Get implements blob.Getter, logging the result.
func (s *Store) Get(ctx context.Context, ref blob.Ref) (blob.Blob, error) {
	b, err := s.s.Get(ctx, ref)
	if err != nil {
		log.Printf("ERROR Get %s: %s", ref, err)
	} else {
		log.Printf("Get %s", ref)
	}
	return b, err
}

// Put implements blob.Store, logging the result.
func (s *Store) Put(ctx context.Context, b blob.Blob) (blob.Ref, bool, error) {
	ref, added, err := s.s.Put(ctx, b)
	if err != nil {
		log.Printf("ERROR Put: %s", err)
	} else {
		log.Printf("Put %s, added=%v", ref, added)
	}
	return ref, added, err
}

// ListRefs implements blob.Store, logging each ref as it's delivered.
func (s *Store) ListRefs(ctx context.Context, start blob.Ref, f func(blob.Ref) error) error {
	log.Printf("ListRefs, start=%s", start)
	return s.s.ListRefs(ctx, start, func(ref blob.Ref) error {
		err := f(ref)
		if err != nil {
			log.Printf("  ERROR in ListRefs: %s: %s", ref, err)
		} else {
			log.Printf("  ListRefs: %s", ref)
		}
		return err
	})
}

func init() {
	registry.Register("logging", func(ctx context.Context, conf map[string]interface{}) (blob.Store, error) {
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
		return New(nestedStore), nil
	})
}
