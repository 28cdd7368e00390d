package accelmon

import (
	"context"
	"fmt"
)

// ErrBusReleased is returned by any transport operation attempted after Release.
var ErrBusReleased = fmt.Errorf("bus handle released")

// ErrBusBusy signals a transient condition on the bus engine (command not completed).
var ErrBusBusy = fmt.Errorf("bus engine is busy (command not completed)")

// RegisterIO is a device-bound register transport. Implementations are
// synchronous and all-or-nothing: WriteThenRead either fills the whole read
// buffer or fails. Retry policy belongs to the caller.
type RegisterIO interface {
	// Write sends buffer to the device in a single bus transaction.
	Write(ctx context.Context, buffer []byte) error
	// WriteThenRead sends w, then fills r within the same transaction where
	// the transport supports it.
	WriteThenRead(ctx context.Context, w, r []byte) error
	// Release gives up the underlying bus endpoint. The transport is unusable
	// afterwards; operations return ErrBusReleased.
	Release(ctx context.Context) error
}
