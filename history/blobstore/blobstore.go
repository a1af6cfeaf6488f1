// Package blobstore implements a history.Log that durably persists each row
// as a blob (so the insert history survives independently of any one
// process's memory), while keeping the per-route ordering of row refs in
// memory for the lifetime of the process.
//
// Row persistence reuses the tiny Anchor protobuf message (a ref plus a
// timestamp) as the wire format for each row's (root ref, insert time)
// pair. Anchor itself carries neither the route nor the TimeID: the route
// keys the in-memory ordering, and a row's TimeID is its 1-based position
// within its route.
package blobstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/history"
)

var _ history.Log = (*Log)(nil)

// Log persists insert-history rows as blobs in s.
type Log struct {
	s blob.Store

	mu      sync.Mutex
	rowRefs map[string][]blob.Ref // route -> ordered row-blob refs
}

// New produces a new Log backed by s.
func New(s blob.Store) *Log {
	return &Log{s: s, rowRefs: make(map[string][]blob.Ref)}
}

// Append implements history.Log.
func (l *Log) Append(ctx context.Context, route string, root blob.Ref) (history.Row, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := history.Row{
		TimeID:  fmt.Sprintf("%020d", len(l.rowRefs[route])+1),
		Route:   route,
		RootRef: root,
	}

	a := &history.Anchor{
		Ref: root[:],
		At:  timestamppb.New(time.Now()),
	}
	ref, _, err := blob.PutProto(ctx, l.s, a)
	if err != nil {
		return history.Row{}, errors.Wrap(err, "storing insert-history row")
	}

	l.rowRefs[route] = append(l.rowRefs[route], ref)
	return row, nil
}

// Latest implements history.Log.
func (l *Log) Latest(ctx context.Context, route string) (history.Row, bool, error) {
	l.mu.Lock()
	refs := l.rowRefs[route]
	l.mu.Unlock()

	if len(refs) == 0 {
		return history.Row{}, false, nil
	}
	row, err := l.load(ctx, route, len(refs)-1, refs[len(refs)-1])
	if err != nil {
		return history.Row{}, false, err
	}
	return row, true, nil
}

// Each implements history.Log.
func (l *Log) Each(ctx context.Context, route string, f func(history.Row) error) error {
	l.mu.Lock()
	refs := make([]blob.Ref, len(l.rowRefs[route]))
	copy(refs, l.rowRefs[route])
	l.mu.Unlock()

	for i, ref := range refs {
		row, err := l.load(ctx, route, i, ref)
		if err != nil {
			return err
		}
		if err := f(row); err != nil {
			return err
		}
	}
	return nil
}

func (l *Log) load(ctx context.Context, route string, index int, ref blob.Ref) (history.Row, error) {
	var a history.Anchor
	if err := blob.GetProto(ctx, l.s, ref, &a); err != nil {
		return history.Row{}, errors.Wrapf(err, "loading insert-history row %s", ref)
	}
	return history.Row{
		TimeID:  fmt.Sprintf("%020d", index+1),
		Route:   route,
		RootRef: blob.RefFromBytes(a.Ref),
	}, nil
}
