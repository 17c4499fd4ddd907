package rpc

import (
	"context"
	"time"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

// HealthModule exposes the daemon's own ping/health surface as an ordinary
// whitelisted module named "test"
// (`{"module":"test","function":"ping",...}`).
type HealthModule struct {
	startedAt time.Time
	metrics   *Metrics
	reg       *registry.Registry
}

// NewHealthModule builds the built-in "test" module.
func NewHealthModule(metrics *Metrics, reg *registry.Registry) *HealthModule {
	return &HealthModule{startedAt: time.Now(), metrics: metrics, reg: reg}
}

func (h *HealthModule) Name() string { return "test" }

func (h *HealthModule) Functions() map[string]modules.Function {
	return map[string]modules.Function{
		"ping":   h.ping,
		"health": h.health,
	}
}

func (h *HealthModule) ping(ctx context.Context, p *modules.Params) (any, error) {
	return map[string]any{
		"ok":             true,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}, nil
}

func (h *HealthModule) health(ctx context.Context, p *modules.Params) (any, error) {
	snap := h.metrics.Snapshot()
	resources := map[string]int{}
	for kind, count := range h.reg.Stats() {
		resources[string(kind)] = count
	}

	return map[string]any{
		"uptime":            snap.UptimeSeconds,
		"requests_processed": snap.RequestsTotal,
		"requests_failed":    snap.RequestsFailed,
		"active_connections": map[string]int{
			"current": snap.ActiveCurrent,
			"peak":    snap.ActivePeak,
		},
		"resources": resources,
	}, nil
}
