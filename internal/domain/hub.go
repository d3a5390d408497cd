package domain

import "context"

// Connection is one live viewer's transport channel. Identity is reference
// equality; implementations must be comparable.
type Connection interface {
	Send(ctx context.Context, message []byte) error
}

// Delivery is the outcome of a broadcast for one connection. Err is nil on
// success and wraps ErrDeliveryFailed otherwise.
type Delivery struct {
	Conn Connection
	Err  error
}
