package smtphelper

import (
	"context"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

// Module is the "smtp" helper module: SMTP sessions (session_... ids).
type Module struct {
	reg *registry.Registry
}

func New(reg *registry.Registry) *Module { return &Module{reg: reg} }

func (m *Module) Name() string { return "smtp" }

func (m *Module) Functions() map[string]modules.Function {
	return map[string]modules.Function{
		"connect": func(ctx context.Context, p *modules.Params) (any, error) {
			return connectSession(m.reg, p)
		},
		"send": func(ctx context.Context, p *modules.Params) (any, error) {
			return sendMail(m.reg, p)
		},
		"disconnect": func(ctx context.Context, p *modules.Params) (any, error) {
			return disconnectSession(m.reg, p)
		},
	}
}
