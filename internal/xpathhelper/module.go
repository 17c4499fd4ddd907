package xpathhelper

import (
	"context"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

// Module is the "xml" helper module: parsed XML documents (doc_... ids).
type Module struct {
	reg *registry.Registry
}

func New(reg *registry.Registry) *Module { return &Module{reg: reg} }

func (m *Module) Name() string { return "xml" }

func (m *Module) Functions() map[string]modules.Function {
	return map[string]modules.Function{
		"parse": func(ctx context.Context, p *modules.Params) (any, error) {
			return parseDocument(m.reg, p)
		},
		"query": func(ctx context.Context, p *modules.Params) (any, error) {
			return queryDocument(m.reg, p)
		},
		"query_one": func(ctx context.Context, p *modules.Params) (any, error) {
			return queryOne(m.reg, p)
		},
		"cleanup": func(ctx context.Context, p *modules.Params) (any, error) {
			return cleanupDocument(m.reg, p)
		},
	}
}
