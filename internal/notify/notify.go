// Package notify is the low-latency wake channel between outbox writers
// and the relay. Signals are best effort: a dropped notification only
// costs latency because the relay's periodic poll is authoritative.
package notify

import "context"

// OutboxChannel is the logical channel fired on every outbox insert.
const OutboxChannel = "outbox_channel"

// Notifier fires a wake signal on a channel.
type Notifier interface {
	Notify(ctx context.Context, channel string) error
}

// Listener subscribes to wake signals on a channel.
type Listener interface {
	Listen(ctx context.Context, channel string) (Subscription, error)
}

// Subscription delivers coalesced wake signals until closed.
type Subscription interface {
	// C never blocks the notifier side; pending signals coalesce into one.
	C() <-chan struct{}
	Close() error
}
