package datetimehelper

import (
	"context"

	"github.com/helperd/helperd/internal/modules"
)

// Module is the "datetime" helper module. Entirely stateless; it never
// touches the resource registry.
type Module struct{}

// New builds the datetime module. It carries no state.
func New() *Module { return &Module{} }

func (m *Module) Name() string { return "datetime" }

func (m *Module) Functions() map[string]modules.Function {
	return map[string]modules.Function{
		"now": func(ctx context.Context, p *modules.Params) (any, error) {
			return nowOp(p)
		},
		"parse": func(ctx context.Context, p *modules.Params) (any, error) {
			return parseOp(p)
		},
		"format": func(ctx context.Context, p *modules.Params) (any, error) {
			return formatOp(p)
		},
		"add_duration": func(ctx context.Context, p *modules.Params) (any, error) {
			return addDurationOp(p)
		},
		"diff": func(ctx context.Context, p *modules.Params) (any, error) {
			return diffOp(p)
		},
		"parse_natural": func(ctx context.Context, p *modules.Params) (any, error) {
			return parseNaturalOp(p)
		},
	}
}
