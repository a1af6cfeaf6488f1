// Package bus describes the notification transport that carries
// insert-history rows between agents.
package bus

import (
	"context"

	"github.com/rljson/fs-agent/history"
)

// Callback is invoked once per row delivered on a subscribed route.
type Callback func(history.Row)

// Bus is the external notification bus. Subscription is filtered by exact
// route. A publisher receives its own messages via local echo; the sync
// engine relies on the bounce-back suppressor, not transport-level dedup,
// to break the resulting cycle.
type Bus interface {
	// Subscribe registers cb to be called for every row published on route.
	// The returned function cancels the subscription.
	Subscribe(route string, cb Callback) (unsubscribe func())

	// Publish delivers row to every subscriber of route, including the
	// caller's own subscriptions (local echo). It does not wait for
	// acknowledgement.
	Publish(ctx context.Context, route string, row history.Row) error

	// PublishWithAck delivers row and blocks until every current
	// subscriber's callback has returned.
	PublishWithAck(ctx context.Context, route string, row history.Row) error
}
