// Package lockfile provides cross-platform advisory file locking primitives
// (flock on unix, LockFileEx on windows, no-ops on wasm).
package lockfile

import (
	"errors"
)

// ErrLocked is returned when an exclusive lock cannot be acquired because it
// is already held by another process.
var ErrLocked = errLockHeld

// ErrLockBusy is returned when a non-blocking lock cannot be acquired
// because another process holds a conflicting lock.
var ErrLockBusy = errors.New("lock busy: held by another process")

// IsLocked returns true if the error indicates a lock is held by another process.
func IsLocked(err error) bool {
	return err == errLockHeld
}
