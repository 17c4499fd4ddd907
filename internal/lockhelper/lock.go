// Package lockhelper implements the "lock" helper module: a named advisory
// file lock resource, adapted from the daemon's own internal/lockfile
// singleton-lock primitive into something any client can request and
// release against an arbitrary path.
package lockhelper

import (
	"os"

	"github.com/helperd/helperd/internal/lockfile"
	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

// lockPayload is the native handle stored under a lock_... id: the open file
// plus whether this process currently holds the advisory lock on it.
type lockPayload struct {
	file   *os.File
	path   string
	shared bool
	held   bool
}

// makeLock implements lock.make({path, shared}): opens (creating if absent)
// the file at path and registers a lock resource over it, unlocked.
func makeLock(reg *registry.Registry, p *modules.Params) (any, error) {
	var path string
	var shared bool
	if err := p.Bind("path", 0, true, &path); err != nil {
		return nil, err
	}
	if err := p.Bind("shared", 1, false, &shared); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, modules.NewError(modules.KindDriverError, "open %q: %v", path, err)
	}

	entry, err := reg.Create(registry.Kind("lock"), &lockPayload{file: f, path: path, shared: shared}, "", map[string]any{
		"path":   path,
		"shared": shared,
	}, releaseLock)
	if err != nil {
		f.Close()
		return nil, modules.Wrap(modules.KindInternal, err)
	}

	return map[string]any{"lock_id": entry.ID}, nil
}

// releaseLock is the registry Releaser for the "lock" kind: unlocks if held,
// then closes the native file handle.
func releaseLock(payload any) error {
	lp, ok := payload.(*lockPayload)
	if !ok || lp == nil {
		return nil
	}
	if lp.held {
		lockfile.FlockUnlock(lp.file)
		lp.held = false
	}
	return lp.file.Close()
}

func lookupLock(reg *registry.Registry, lockID string) (*registry.Entry, *lockPayload, error) {
	entry, ok := reg.Get(lockID, registry.Kind("lock"))
	if !ok {
		return nil, nil, modules.NewError(modules.KindNotFound, "lock %q is not a live resource", lockID)
	}
	payload, ok := entry.Payload().(*lockPayload)
	if !ok {
		return nil, nil, modules.NewError(modules.KindInternal, "lock %q has an unexpected payload type", lockID)
	}
	return entry, payload, nil
}

// acquireLock implements lock.lock({lock_id, blocking}): acquires the
// resource's advisory lock in the mode it was created with (shared or
// exclusive). A shared lock is always attempted non-blocking; for an
// exclusive lock blocking defaults to false. A non-blocking attempt against an
// already-held conflicting lock returns state_error rather than blocking the
// caller's whole connection for an unbounded time.
func acquireLock(reg *registry.Registry, p *modules.Params) (any, error) {
	var lockID string
	var blocking bool
	if err := p.Bind("lock_id", 0, true, &lockID); err != nil {
		return nil, err
	}
	if err := p.Bind("blocking", 1, false, &blocking); err != nil {
		return nil, err
	}

	entry, lp, err := lookupLock(reg, lockID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()

	if lp.held {
		return map[string]any{"success": true, "acquired": true}, nil
	}

	var lockErr error
	switch {
	case lp.shared:
		lockErr = lockfile.FlockSharedNonBlock(lp.file)
	case blocking:
		lockErr = lockfile.FlockExclusiveBlocking(lp.file)
	default:
		lockErr = lockfile.FlockExclusiveNonBlocking(lp.file)
	}

	if lockErr != nil {
		if lockfile.IsLocked(lockErr) || lockErr == lockfile.ErrLockBusy {
			return nil, modules.NewError(modules.KindStateError, "lock %q is held by another process", lockID)
		}
		return nil, modules.Wrap(modules.KindDriverError, lockErr)
	}

	lp.held = true
	entry.Touch()
	return map[string]any{"success": true, "acquired": true}, nil
}

// unlockLock implements lock.unlock({lock_id}): releases the advisory lock
// but keeps the resource (and its open file handle) alive for reuse.
// Idempotent.
func unlockLock(reg *registry.Registry, p *modules.Params) (any, error) {
	var lockID string
	if err := p.Bind("lock_id", 0, true, &lockID); err != nil {
		return nil, err
	}

	entry, lp, err := lookupLock(reg, lockID)
	if err != nil {
		return nil, err
	}

	entry.Lock()
	defer entry.Unlock()

	if !lp.held {
		return map[string]any{"success": true}, nil
	}
	if err := lockfile.FlockUnlock(lp.file); err != nil {
		return nil, modules.Wrap(modules.KindDriverError, err)
	}
	lp.held = false
	entry.Touch()
	return map[string]any{"success": true}, nil
}

// releaseLockResource implements lock.release({lock_id}): unlocks if held,
// closes the file, destroys the entry. Idempotent.
func releaseLockResource(reg *registry.Registry, p *modules.Params) (any, error) {
	var lockID string
	if err := p.Bind("lock_id", 0, true, &lockID); err != nil {
		return nil, err
	}
	reg.Destroy(lockID)
	return map[string]any{"success": true}, nil
}
