// Package locks serializes mutating operations on overlapping drive paths.
package locks

import (
	"context"
	"errors"
)

// Lock errors
var (
	ErrLocked = errors.New("path is locked by another operation")
	ErrClosed = errors.New("lock manager is closed")
)

// Manager hands out locks on normalized paths. A lock on a directory conflicts
// with locks on everything below it; the root ("") conflicts with every path.
type Manager interface {
	// TryLock locks all keys or none. It never waits: when any key conflicts
	// with a held lock it returns ErrLocked. The returned release function is
	// safe to call more than once.
	TryLock(ctx context.Context, keys ...string) (release func(), err error)

	// Close releases every lock and rejects further TryLock calls
	Close() error
}
