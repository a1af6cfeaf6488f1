package blob

import (
	"context"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
)

// Getter is anything that can retrieve a blob by ref.
type Getter interface {
	// Get gets the blob with hash ref.
	// It is ErrNotFound if no such blob exists.
	Get(ctx context.Context, ref Ref) (Blob, error)
}

// Store is a Getter that can also add blobs, and enumerate all the refs it
// holds. Implementations must treat Put as idempotent on content: storing
// the same bytes twice is a no-op the second time and both calls produce
// the same ref.
type Store interface {
	Getter

	// Put adds a blob to the store if it isn't already present.
	// The returned bool reports whether the blob was newly added.
	Put(ctx context.Context, b Blob) (ref Ref, added bool, err error)

	// ListRefs calls f once for every ref in the store, in ascending
	// lexicographic order, starting just after start (the zero Ref lists
	// from the beginning). It stops and returns f's error if f returns one.
	ListRefs(ctx context.Context, start Ref, f func(Ref) error) error
}

// GetMulti is a default implementation of a multi-ref Get for Store
// implementations that have no more efficient way to do it.
func GetMulti(ctx context.Context, g Getter, refs []Ref) (map[Ref]Blob, error) {
	result := make(map[Ref]Blob, len(refs))
	for _, ref := range refs {
		b, err := g.Get(ctx, ref)
		if err != nil {
			return nil, errors.Wrapf(err, "getting %s", ref)
		}
		result[ref] = b
	}
	return result, nil
}

// PutMulti is a default implementation of a multi-blob Put for Store
// implementations that have no more efficient way to do it.
func PutMulti(ctx context.Context, s Store, blobs []Blob) ([]Ref, []bool, error) {
	var (
		refs  = make([]Ref, len(blobs))
		added = make([]bool, len(blobs))
	)
	for i, b := range blobs {
		ref, a, err := s.Put(ctx, b)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "putting blob %d", i)
		}
		refs[i] = ref
		added[i] = a
	}
	return refs, added, nil
}

// ProtoRef computes the Ref that PutProto would produce for m, without
// storing anything.
func ProtoRef(m proto.Message) (Ref, error) {
	b, err := proto.Marshal(m)
	if err != nil {
		return Ref{}, errors.Wrap(err, "marshaling proto message")
	}
	return Blob(b).Ref(), nil
}

// PutProto marshals m and stores it as a blob.
func PutProto(ctx context.Context, s Store, m proto.Message) (Ref, bool, error) {
	b, err := proto.Marshal(m)
	if err != nil {
		return Ref{}, false, errors.Wrap(err, "marshaling proto message")
	}
	return s.Put(ctx, b)
}

// GetProto gets the blob at ref and unmarshals it into m.
func GetProto(ctx context.Context, g Getter, ref Ref, m proto.Message) error {
	b, err := g.Get(ctx, ref)
	if err != nil {
		return errors.Wrapf(err, "getting %s", ref)
	}
	return errors.Wrap(proto.Unmarshal(b, m), "unmarshaling proto message")
}
