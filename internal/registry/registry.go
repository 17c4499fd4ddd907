// Package registry implements the shared, concurrency-safe store of
// long-lived helper resources (database connections, statements, cipher
// instances, parsed XML documents, SSH/FTP sessions, lock tokens) that
// request messages refer to by opaque id.
//
// A map guarded by a registry-level lock handles create/lookup/destroy
// across N kinds of arbitrary native resources; each entry carries its own
// lock so payload mutation on one resource never blocks another.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Kind namespaces resource ids and lets the reaper and stats surface group
// entries (conn_, stmt_, cipher_, doc_, session_, lock_).
type Kind string

// Releaser performs the kind-specific teardown of a resource's native
// payload (close cursor, disconnect driver, dispose parsed document, ...).
// It is called with the entry already removed from the registry and is
// retried up to two more times while it returns an error; the last error (if
// any) is logged by the caller, never propagated to a client.
type Releaser func(payload any) error

// Entry is one long-lived resource tracked by the daemon.
type Entry struct {
	ID         string
	Kind       Kind
	ParentID   string
	CreatedAt  time.Time
	Metadata   map[string]any
	Release    Releaser

	mu         sync.Mutex
	payload    any

	// usedMu guards lastUsedAt only, separately from mu, so Touch can be
	// called by a helper that already holds Lock.
	usedMu     sync.Mutex
	lastUsedAt time.Time
}

// Lock serializes operations against this entry's payload. Callers that read
// or mutate Payload must hold Lock for the duration.
func (e *Entry) Lock() { e.mu.Lock() }

// Unlock releases the per-entry lock acquired by Lock.
func (e *Entry) Unlock() { e.mu.Unlock() }

// Payload returns the underlying native handle. Callers must hold Lock.
func (e *Entry) Payload() any { return e.payload }

// SetPayload replaces the underlying native handle. Callers must hold Lock.
func (e *Entry) SetPayload(p any) { e.payload = p }

// Touch records that the entry was just read or mutated, resetting the idle
// clock the reaper uses for TTL eviction. last_used_at is updated on every
// operation that reads or mutates the resource payload.
func (e *Entry) Touch() {
	e.usedMu.Lock()
	e.lastUsedAt = time.Now()
	e.usedMu.Unlock()
}

// LastUsedAt returns the last-touch timestamp.
func (e *Entry) LastUsedAt() time.Time {
	e.usedMu.Lock()
	defer e.usedMu.Unlock()
	return e.lastUsedAt
}

// Stats is the per-kind count returned by Registry.Stats.
type Stats map[Kind]int

// Registry is the process-wide resource store. One Registry instance is
// shared by every helper module.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	children map[string]map[string]struct{} // parent id -> set of child ids
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		entries:  make(map[string]*Entry),
		children: make(map[string]map[string]struct{}),
	}
}

// Create registers a new resource of the given kind and returns its opaque
// id. If parentID is non-empty it must refer to a live parent entry;
// otherwise Create returns a not_found-style plain error (callers map it to
// the error_kind they need).
func (r *Registry) Create(kind Kind, payload any, parentID string, metadata map[string]any, release Releaser) (*Entry, error) {
	id := fmt.Sprintf("%s_%s", kind, uuid.NewString())
	now := time.Now()
	entry := &Entry{
		ID:         id,
		Kind:       kind,
		ParentID:   parentID,
		CreatedAt:  now,
		Metadata:   metadata,
		Release:    release,
		payload:    payload,
		lastUsedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if parentID != "" {
		if _, ok := r.entries[parentID]; !ok {
			return nil, fmt.Errorf("registry: parent %q is not a live resource", parentID)
		}
		if r.children[parentID] == nil {
			r.children[parentID] = make(map[string]struct{})
		}
		r.children[parentID][id] = struct{}{}
	}

	r.entries[id] = entry
	return entry, nil
}

// Get looks up a resource by id. If expectedKind is non-empty, a kind
// mismatch is treated the same as a miss (the caller asked for a connection
// id but got a statement's id, say).
func (r *Registry) Get(id string, expectedKind Kind) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	if expectedKind != "" && entry.Kind != expectedKind {
		return nil, false
	}
	return entry, true
}

// Touch updates last_used_at for id, returning false if id is not live.
func (r *Registry) Touch(id string) bool {
	r.mu.RLock()
	entry, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	entry.Touch()
	return true
}

// Children returns the direct child ids of a resource (not transitive).
func (r *Registry) Children(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kids := r.children[id]
	out := make([]string, 0, len(kids))
	for k := range kids {
		out = append(out, k)
	}
	return out
}

// Destroy removes id and, transitively, all of its children, child-first,
// running each entry's Releaser as it is removed. Releaser errors are
// returned in the aggregate slice for the caller to log; Destroy itself is
// idempotent -- destroying an id that is already gone (or never existed) is
// a no-op, not an error.
func (r *Registry) Destroy(id string) []error {
	var errs []error
	r.destroyRecursive(id, &errs)
	return errs
}

func (r *Registry) destroyRecursive(id string, errs *[]error) {
	for _, child := range r.Children(id) {
		r.destroyRecursive(child, errs)
	}

	r.mu.Lock()
	entry, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.entries, id)
	delete(r.children, id)
	if entry.ParentID != "" {
		if siblings, ok := r.children[entry.ParentID]; ok {
			delete(siblings, id)
		}
	}
	r.mu.Unlock()

	if entry.Release != nil {
		entry.Lock()
		payload := entry.Payload()
		entry.Unlock()

		// The entry is already detached from the registry at this point, so
		// retrying here actually re-attempts the native release rather than
		// re-running Destroy against an id that is no longer there.
		boff := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
		if err := backoff.Retry(func() error { return entry.Release(payload) }, boff); err != nil {
			*errs = append(*errs, fmt.Errorf("registry: release %s: %w", id, err))
		}
	}
}

// Stats returns the live entry count per kind.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make(Stats)
	for _, entry := range r.entries {
		stats[entry.Kind]++
	}
	return stats
}

// IdleBefore returns the ids of every entry of the given kind whose
// last-used timestamp is older than cutoff, used by the reaper's TTL sweep.
func (r *Registry) IdleBefore(kind Kind, cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, entry := range r.entries {
		if entry.Kind != kind {
			continue
		}
		if entry.LastUsedAt().Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// AllByLastUsed returns every live entry across all kinds, oldest-used first;
// used by the memory-pressure eviction path to pick the least-recently-used
// half of the registry regardless of kind.
func (r *Registry) AllByLastUsed() []*Entry {
	r.mu.RLock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastUsedAt().Before(entries[j].LastUsedAt())
	})
	return entries
}

// Len returns the total number of live entries across all kinds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
