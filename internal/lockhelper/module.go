package lockhelper

import (
	"context"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

// Module is the "lock" helper module: named advisory file locks under the
// shared non-core helper contract.
type Module struct {
	reg *registry.Registry
}

// New builds the lock module against the shared resource registry.
func New(reg *registry.Registry) *Module {
	return &Module{reg: reg}
}

func (m *Module) Name() string { return "lock" }

func (m *Module) Functions() map[string]modules.Function {
	return map[string]modules.Function{
		"make": func(ctx context.Context, p *modules.Params) (any, error) {
			return makeLock(m.reg, p)
		},
		"lock": func(ctx context.Context, p *modules.Params) (any, error) {
			return acquireLock(m.reg, p)
		},
		"unlock": func(ctx context.Context, p *modules.Params) (any, error) {
			return unlockLock(m.reg, p)
		},
		"release": func(ctx context.Context, p *modules.Params) (any, error) {
			return releaseLockResource(m.reg, p)
		},
	}
}
