package fsagent

import (
	"context"
	"time"
)

// Timeouts holds the budgets of the deadline wrapper, each overridable per
// agent.
type Timeouts struct {
	DBQuery      time.Duration
	FetchTree    time.Duration
	Extract      time.Duration
	Restore      time.Duration
	SyncCallback time.Duration
	DebounceMs   time.Duration
}

// DefaultTimeouts returns the engine's default budgets.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		DBQuery:      10000 * time.Millisecond,
		FetchTree:    20000 * time.Millisecond,
		Extract:      15000 * time.Millisecond,
		Restore:      15000 * time.Millisecond,
		SyncCallback: 25000 * time.Millisecond,
		DebounceMs:   300 * time.Millisecond,
	}
}

// WithDeadline runs f under a context bounded by budget. If f does not
// return before the budget elapses, WithDeadline returns a Timeout error
// labeled with label without waiting for f to return. f is not assumed to
// be context-cooperative: a collaborator that ignores ctx and blocks
// forever (a stalled store call, say) must not be able to hang the caller
// past its own budget, so f's goroutine is left to finish, or never
// finish, on its own; done is buffered so that goroutine never blocks
// trying to send its result.
func WithDeadline(ctx context.Context, label string, budget time.Duration, f func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return NewTimeout(label, budget.Milliseconds())
	}
}
