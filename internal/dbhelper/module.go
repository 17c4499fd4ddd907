package dbhelper

import (
	"context"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

// Module is the "db" helper module: the database state machine wired into
// the dispatcher's static whitelist table.
type Module struct {
	reg   *registry.Registry
	cache *ConnectionCache
}

// New builds the db module against the shared resource registry.
func New(reg *registry.Registry) *Module {
	return &Module{reg: reg, cache: NewConnectionCache(reg)}
}

func (m *Module) Name() string { return "db" }

func (m *Module) Functions() map[string]modules.Function {
	return map[string]modules.Function{
		"connect": func(ctx context.Context, p *modules.Params) (any, error) {
			return connect(ctx, m.reg, p)
		},
		"connect_cached": func(ctx context.Context, p *modules.Params) (any, error) {
			return m.cache.connectCached(ctx, m.reg, p)
		},
		"disconnect": func(ctx context.Context, p *modules.Params) (any, error) {
			return disconnect(m.reg, p)
		},
		"begin_transaction": func(ctx context.Context, p *modules.Params) (any, error) {
			return beginTransaction(ctx, m.reg, p)
		},
		"commit": func(ctx context.Context, p *modules.Params) (any, error) {
			return commitOrRollback(m.reg, p, true)
		},
		"rollback": func(ctx context.Context, p *modules.Params) (any, error) {
			return commitOrRollback(m.reg, p, false)
		},
		"prepare": func(ctx context.Context, p *modules.Params) (any, error) {
			return prepare(m.reg, p)
		},
		"execute_statement": func(ctx context.Context, p *modules.Params) (any, error) {
			return executeStatement(ctx, m.reg, p)
		},
		"execute_immediate": func(ctx context.Context, p *modules.Params) (any, error) {
			return executeImmediate(ctx, m.reg, p)
		},
		"fetch_row": func(ctx context.Context, p *modules.Params) (any, error) {
			return fetchRow(m.reg, p)
		},
		"fetch_all": func(ctx context.Context, p *modules.Params) (any, error) {
			return fetchAll(m.reg, p)
		},
		"finish_statement": func(ctx context.Context, p *modules.Params) (any, error) {
			return finishStatement(m.reg, p)
		},
		"get_bind_value": func(ctx context.Context, p *modules.Params) (any, error) {
			return getBindValue(m.reg, p)
		},
	}
}
