// Package history models the append-only insert-history log: one row per
// tree inserted into the tree store, delivered to the notification bus
// unless explicitly suppressed.
package history

import (
	"context"

	"github.com/rljson/fs-agent/blob"
)

// Row is an insert-history row: {time_id, route, root_hash}.
type Row struct {
	TimeID  string
	Route   string
	RootRef blob.Ref
}

// Log is an append-only, per-route ordered log of insert-history rows.
// TimeID values are monotonically increasing within a route.
type Log interface {
	// Append records a new row for route with a fresh, monotonically
	// increasing TimeID.
	Append(ctx context.Context, route string, root blob.Ref) (Row, error)

	// Latest returns the most recently appended row for route, if any.
	Latest(ctx context.Context, route string) (Row, bool, error)

	// Each calls f once for every row recorded for route, oldest first.
	// It stops and returns f's error if f returns one.
	Each(ctx context.Context, route string, f func(Row) error) error
}
