// Package transform implements a blob store that transforms blobs into and
// out of a nested store, e.g. to compress blobs at rest.
package transform

import (
	"bytes"
	"compress/lzw"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/blob/registry"
)

var _ blob.Store = &Store{}

// Transformer tells how to transform a blob on its way into and out of a
// Store. Out must be the inverse of In.
type Transformer interface {
	In(context.Context, []byte) ([]byte, error)
	Out(context.Context, []byte) ([]byte, error)
}

// Store wraps a nested blob.Store and a Transformer. Blobs are transformed
// according to the Transformer on their way in and out of the nested
// store. The map from untransformed ref to transformed ref lives only in
// memory and is never rebuilt: Get of a ref that was not Put through this
// Store returns blob.ErrNotFound, even if the nested store holds its
// transformed bytes. This decorator is therefore only useful while the
// process that wrote a blob is still the one reading it back.
type Store struct {
	s blob.Store
	x Transformer

	mu sync.Mutex
	m  map[blob.Ref]blob.Ref // untransformed ref -> transformed ref
}

// New produces a new transform Store wrapping s.
func New(s blob.Store, x Transformer) *Store {
	return &Store{s: s, x: x, m: make(map[blob.Ref]blob.Ref)}
}

// Get gets the blob with hash ref, untransforming it on the way out.
func (s *Store) Get(ctx context.Context, ref blob.Ref) (blob.Blob, error) {
	s.mu.Lock()
	cref, ok := s.m[ref]
	s.mu.Unlock()
	if !ok {
		return nil, blob.ErrNotFound
	}

	cblob, err := s.s.Get(ctx, cref)
	if err != nil {
		return nil, errors.Wrap(err, "getting transformed blob")
	}
	out, err := s.x.Out(ctx, cblob)
	return out, errors.Wrap(err, "untransforming blob")
}

// Put transforms b and stores the result in the nested store.
func (s *Store) Put(ctx context.Context, b blob.Blob) (blob.Ref, bool, error) {
	ref := b.Ref()

	cbytes, err := s.x.In(ctx, b)
	if err != nil {
		return blob.Ref{}, false, errors.Wrap(err, "transforming blob")
	}
	cref, added, err := s.s.Put(ctx, cbytes)
	if err != nil {
		return blob.Ref{}, false, errors.Wrap(err, "storing transformed blob")
	}

	s.mu.Lock()
	s.m[ref] = cref
	s.mu.Unlock()

	return ref, added, nil
}

// ListRefs produces the untransformed refs known to this Store, in
// lexicographic order.
func (s *Store) ListRefs(_ context.Context, start blob.Ref, f func(blob.Ref) error) error {
	s.mu.Lock()
	refs := make([]blob.Ref, 0, len(s.m))
	for ref := range s.m {
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

// LZW is a Transformer using compress/lzw.
type LZW struct {
	Order lzw.Order
	Width int
}

// In compresses b.
func (t LZW) In(_ context.Context, b []byte) ([]byte, error) {
	width := t.Width
	if width == 0 {
		width = 8
	}
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, t.Order, width)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	return buf.Bytes(), w.Close()
}

// Out decompresses b.
func (t LZW) Out(_ context.Context, b []byte) ([]byte, error) {
	width := t.Width
	if width == 0 {
		width = 8
	}
	r := lzw.NewReader(bytes.NewReader(b), t.Order, width)
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func init() {
	registry.Register("transform", func(ctx context.Context, conf map[string]interface{}) (blob.Store, error) {
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

		transformer, ok := conf["transformer"].(string)
		if !ok {
			return nil, errors.New(`missing "transformer" parameter`)
		}
		switch transformer {
		case "lzw":
			return New(nestedStore, LZW{Order: lzw.LSB}), nil
		default:
			return nil, fmt.Errorf(`unknown transformer "%s"`, transformer)
		}
	})
}
