package types

import "context"

// Subscription is a live stream of logs opened on a ledger gateway.
type Subscription interface {
	// Err yields the error that ended the subscription, if any, and is
	// closed when the subscription ends.
	Err() <-chan error
	// Unsubscribe stops delivery. It may be called more than once.
	Unsubscribe()
}

// PendingTx is a submitted transaction awaiting inclusion.
type PendingTx interface {
	ID() string
	Wait(ctx context.Context) (*Receipt, error)
}
