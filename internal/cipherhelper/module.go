package cipherhelper

import (
	"context"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

// Module is the "crypto" helper module: cipher instances registered under
// the shared non-core helper contract's cipher resource kind.
type Module struct {
	reg *registry.Registry
}

// New builds the crypto module against the shared resource registry.
func New(reg *registry.Registry) *Module {
	return &Module{reg: reg}
}

func (m *Module) Name() string { return "crypto" }

func (m *Module) Functions() map[string]modules.Function {
	return map[string]modules.Function{
		"new": func(ctx context.Context, p *modules.Params) (any, error) {
			return newCipher(m.reg, p)
		},
		"encrypt": func(ctx context.Context, p *modules.Params) (any, error) {
			return encryptCipher(m.reg, p)
		},
		"decrypt": func(ctx context.Context, p *modules.Params) (any, error) {
			return decryptCipher(m.reg, p)
		},
		"cleanup_cipher": func(ctx context.Context, p *modules.Params) (any, error) {
			return cleanupCipher(m.reg, p)
		},
	}
}
