package sshhelper

import (
	"context"

	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
)

// Module is the "ssh" helper module: SSH sessions (session_... ids) and the
// SFTP subsessions layered on top of them (sftp_... ids, children of the
// owning session).
type Module struct {
	reg *registry.Registry
}

func New(reg *registry.Registry) *Module { return &Module{reg: reg} }

func (m *Module) Name() string { return "ssh" }

func (m *Module) Functions() map[string]modules.Function {
	return map[string]modules.Function{
		"connect": func(ctx context.Context, p *modules.Params) (any, error) {
			return connectSession(m.reg, p)
		},
		"exec": func(ctx context.Context, p *modules.Params) (any, error) {
			return execSession(m.reg, p)
		},
		"disconnect": func(ctx context.Context, p *modules.Params) (any, error) {
			return disconnectSession(m.reg, p)
		},
		"sftp_open": func(ctx context.Context, p *modules.Params) (any, error) {
			return openSFTP(m.reg, p)
		},
		"sftp_put": func(ctx context.Context, p *modules.Params) (any, error) {
			return sftpPut(m.reg, p)
		},
		"sftp_get": func(ctx context.Context, p *modules.Params) (any, error) {
			return sftpGet(m.reg, p)
		},
		"sftp_list": func(ctx context.Context, p *modules.Params) (any, error) {
			return sftpList(m.reg, p)
		},
		"sftp_mkdir": func(ctx context.Context, p *modules.Params) (any, error) {
			return sftpMkdir(m.reg, p)
		},
		"sftp_remove": func(ctx context.Context, p *modules.Params) (any, error) {
			return sftpRemove(m.reg, p)
		},
		"sftp_close": func(ctx context.Context, p *modules.Params) (any, error) {
			return sftpClose(m.reg, p)
		},
	}
}
