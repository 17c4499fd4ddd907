// Package reaper implements the background sweep that evicts idle or
// expired resource-registry entries, generalized from one storage cache to
// every resource kind the registry holds.
package reaper

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/helperd/helperd/internal/config"
	"github.com/helperd/helperd/internal/registry"
)

// MemoryPressureFunc reports whether the process is currently under memory
// pressure; swappable in tests. The real implementation reads runtime.MemStats.
type MemoryPressureFunc func() bool

// Reaper periodically sweeps the registry for idle entries and, when memory
// pressure is detected, evicts the least-recently-used half of all entries
// regardless of kind.
type Reaper struct {
	cfg    *config.Config
	reg    *registry.Registry
	kinds  []config.ResourceKind
	isUnderPressure MemoryPressureFunc
}

// New builds a Reaper that sweeps the given kinds on cfg.ReaperInterval.
func New(cfg *config.Config, reg *registry.Registry, kinds []config.ResourceKind, pressure MemoryPressureFunc) *Reaper {
	if pressure == nil {
		pressure = defaultMemoryPressure
	}
	return &Reaper{cfg: cfg, reg: reg, kinds: kinds, isUnderPressure: pressure}
}

// Run blocks, sweeping at cfg.ReaperInterval until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Reaper) sweep() {
	r.ttlSweep()
	if r.isUnderPressure() {
		r.pressureEviction()
	}
}

// ttlSweep evicts, kind by kind, every entry whose last_used_at is older
// than that kind's TTL, children first -- Destroy already walks children
// first.
func (r *Reaper) ttlSweep() {
	for _, kind := range r.kinds {
		ttl := r.cfg.TTLFor(kind)
		cutoff := time.Now().Add(-ttl)
		ids := r.reg.IdleBefore(registry.Kind(kind), cutoff)
		for _, id := range ids {
			r.evict(id, "ttl")
		}
	}
}

// pressureEviction evicts the oldest half of all live entries across every
// kind.
func (r *Reaper) pressureEviction() {
	all := r.reg.AllByLastUsed()
	if len(all) == 0 {
		return
	}
	evictCount := len(all) / 2
	fmt.Fprintf(os.Stderr, "[%s] reaper: memory pressure detected, evicting %d/%d resources\n", stamp(), evictCount, len(all))
	for i := 0; i < evictCount; i++ {
		r.evict(all[i].ID, "memory_pressure")
	}
}

// evict destroys id, logging -- never propagating -- any release failure.
// Destroy itself retries the native release before the entry is gone for
// good, so there is nothing left to re-attempt at this level.
func (r *Reaper) evict(id string, reason string) {
	errs := r.reg.Destroy(id)
	if len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "[%s] reaper: eviction of %s (%s) failed: %v\n", stamp(), id, reason, errs)
		return
	}
	fmt.Fprintf(os.Stderr, "[%s] reaper: evicted %s (%s)\n", stamp(), id, reason)
}

func stamp() string {
	return time.Now().Format("2006-01-02T15:04:05.000Z07:00")
}
