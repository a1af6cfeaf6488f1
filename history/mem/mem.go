// Package mem implements an in-memory history.Log.
package mem

import (
	"context"
	"fmt"
	"sync"

	"github.com/rljson/fs-agent/blob"
	"github.com/rljson/fs-agent/history"
)

var _ history.Log = (*Log)(nil)

// Log is a memory-based implementation of history.Log.
type Log struct {
	mu      sync.Mutex
	counter uint64
	rows    map[string][]history.Row
}

// New produces a new, empty Log.
func New() *Log {
	return &Log{rows: make(map[string][]history.Row)}
}

// Append implements history.Log.
func (l *Log) Append(_ context.Context, route string, root blob.Ref) (history.Row, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counter++
	row := history.Row{
		TimeID:  fmt.Sprintf("%020d", l.counter),
		Route:   route,
		RootRef: root,
	}
	l.rows[route] = append(l.rows[route], row)
	return row, nil
}

// Latest implements history.Log.
func (l *Log) Latest(_ context.Context, route string) (history.Row, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows := l.rows[route]
	if len(rows) == 0 {
		return history.Row{}, false, nil
	}
	return rows[len(rows)-1], true, nil
}

// Each implements history.Log.
func (l *Log) Each(ctx context.Context, route string, f func(history.Row) error) error {
	l.mu.Lock()
	rows := make([]history.Row, len(l.rows[route]))
	copy(rows, l.rows[route])
	l.mu.Unlock()

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f(row); err != nil {
			return err
		}
	}
	return nil
}
