// Package schema implements a history.Log whose per-route row-ref index is
// itself persisted as a single blob, rather than kept only in process
// memory the way history/mem and history/blobstore do. Each append replaces
// the index blob with a new one holding the extended ordered list of row
// refs. The write-once blob store keeps every prior version around, which
// is wasteful for a long-lived route but demonstrates an alternative
// backing index structure.
//
// The index is a canonical-JSON-encoded ordered list of hex refs, the same
// encoding technique treestore.Node uses for its own canonical form (an
// unordered membership structure like a Set/Subset tree doesn't fit an
// append-only, insertion-ordered log; see DESIGN.md). Each row's (root ref,
// insert time) pair reuses the Anchor protobuf message as its own wire
// format, matching history/blobstore.
package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	canonicaljson "github.com/gibson042/canonicaljson-go"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/history"
)

var _ history.Log = (*Log)(nil)

// index is the canonical wire shape of a route's row-ref index blob.
type index struct {
	Refs []string `json:"refs"`
}

// Log persists insert-history rows as Anchor blobs, and the per-route
// ordered index of those rows as its own replaced-on-each-append blob.
type Log struct {
	s blob.Store

	mu       sync.Mutex
	counter  uint64
	indexRef map[string]blob.Ref
}

// New produces a new Log backed by s.
func New(s blob.Store) *Log {
	return &Log{s: s, indexRef: make(map[string]blob.Ref)}
}

// Append implements history.Log.
func (l *Log) Append(ctx context.Context, route string, root blob.Ref) (history.Row, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counter++
	row := history.Row{
		TimeID:  fmt.Sprintf("%020d", l.counter),
		Route:   route,
		RootRef: root,
	}

	a := &history.Anchor{
		Ref: root[:],
		At:  timestamppb.New(time.Now()),
	}
	rowRef, _, err := blob.PutProto(ctx, l.s, a)
	if err != nil {
		return history.Row{}, errors.Wrap(err, "storing insert-history row")
	}

	refs, err := l.loadRefsLocked(ctx, route)
	if err != nil {
		return history.Row{}, err
	}
	refs = append(refs, rowRef)

	newIndexRef, err := l.storeRefs(ctx, refs)
	if err != nil {
		return history.Row{}, err
	}
	l.indexRef[route] = newIndexRef

	return row, nil
}

// Latest implements history.Log.
func (l *Log) Latest(ctx context.Context, route string) (history.Row, bool, error) {
	l.mu.Lock()
	refs, err := l.loadRefsLocked(ctx, route)
	l.mu.Unlock()
	if err != nil {
		return history.Row{}, false, err
	}
	if len(refs) == 0 {
		return history.Row{}, false, nil
	}
	row, err := l.loadRow(ctx, route, len(refs)-1, refs[len(refs)-1])
	if err != nil {
		return history.Row{}, false, err
	}
	return row, true, nil
}

// Each implements history.Log.
func (l *Log) Each(ctx context.Context, route string, f func(history.Row) error) error {
	l.mu.Lock()
	refs, err := l.loadRefsLocked(ctx, route)
	l.mu.Unlock()
	if err != nil {
		return err
	}

	for i, ref := range refs {
		row, err := l.loadRow(ctx, route, i, ref)
		if err != nil {
			return err
		}
		if err := f(row); err != nil {
			return err
		}
	}
	return nil
}

func (l *Log) loadRefs(ctx context.Context, route string) ([]blob.Ref, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadRefsLocked(ctx, route)
}

func (l *Log) loadRefsLocked(ctx context.Context, route string) ([]blob.Ref, error) {
	ref, ok := l.indexRef[route]
	if !ok {
		return nil, nil
	}

	b, err := l.s.Get(ctx, ref)
	if err != nil {
		return nil, errors.Wrapf(err, "loading index for route %s", route)
	}

	var idx index
	if err := canonicaljson.Unmarshal(b, &idx); err != nil {
		return nil, errors.Wrap(err, "decoding index")
	}

	refs := make([]blob.Ref, len(idx.Refs))
	for i, hex := range idx.Refs {
		r, err := blob.RefFromHex(hex)
		if err != nil {
			return nil, errors.Wrap(err, "decoding index ref")
		}
		refs[i] = r
	}
	return refs, nil
}

func (l *Log) storeRefs(ctx context.Context, refs []blob.Ref) (blob.Ref, error) {
	idx := index{Refs: make([]string, len(refs))}
	for i, r := range refs {
		idx.Refs[i] = r.String()
	}

	b, err := canonicaljson.Marshal(idx)
	if err != nil {
		return blob.Ref{}, errors.Wrap(err, "encoding index")
	}

	ref, _, err := l.s.Put(ctx, b)
	return ref, errors.Wrap(err, "storing index")
}

func (l *Log) loadRow(ctx context.Context, route string, pos int, ref blob.Ref) (history.Row, error) {
	var a history.Anchor
	if err := blob.GetProto(ctx, l.s, ref, &a); err != nil {
		return history.Row{}, errors.Wrapf(err, "loading insert-history row %s", ref)
	}
	return history.Row{
		TimeID:  fmt.Sprintf("%020d", pos+1),
		Route:   route,
		RootRef: blob.RefFromBytes(a.Ref),
	}, nil
}
