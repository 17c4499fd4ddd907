package ftphelper

import (
	"context"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

// Module is the "ftp" helper module: FTP sessions (session_... ids).
type Module struct {
	reg *registry.Registry
}

func New(reg *registry.Registry) *Module { return &Module{reg: reg} }

func (m *Module) Name() string { return "ftp" }

func (m *Module) Functions() map[string]modules.Function {
	return map[string]modules.Function{
		"connect": func(ctx context.Context, p *modules.Params) (any, error) {
			return connectSession(m.reg, p)
		},
		"put": func(ctx context.Context, p *modules.Params) (any, error) {
			return uploadFile(m.reg, p)
		},
		"get": func(ctx context.Context, p *modules.Params) (any, error) {
			return downloadFile(m.reg, p)
		},
		"list": func(ctx context.Context, p *modules.Params) (any, error) {
			return listDirectory(m.reg, p)
		},
		"mkdir": func(ctx context.Context, p *modules.Params) (any, error) {
			return makeDirectory(m.reg, p)
		},
		"remove": func(ctx context.Context, p *modules.Params) (any, error) {
			return removeFile(m.reg, p)
		},
		"disconnect": func(ctx context.Context, p *modules.Params) (any, error) {
			return disconnectSession(m.reg, p)
		},
	}
}
