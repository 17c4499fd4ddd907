package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/helperd/helperd/internal/cipherhelper"
	"github.com/helperd/helperd/internal/config"
	"github.com/helperd/helperd/internal/datetimehelper"
	"github.com/helperd/helperd/internal/dbhelper"
	"github.com/helperd/helperd/internal/ftphelper"
	"github.com/helperd/helperd/internal/lockhelper"
	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/reaper"
	"github.com/helperd/helperd/internal/registry"
	"github.com/helperd/helperd/internal/rpc"
	"github.com/helperd/helperd/internal/smtphelper"
	"github.com/helperd/helperd/internal/sshhelper"
	"github.com/helperd/helperd/internal/telemetry"
	"github.com/helperd/helperd/internal/xpathhelper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context())
	},
}

// allResourceKinds is the fixed set the reaper sweeps, one per registry kind
// any helper module registers resources under.
var allResourceKinds = []config.ResourceKind{
	config.KindConnection,
	config.KindStatement,
	config.KindCipher,
	config.KindDocument,
	config.KindSession,
	config.KindLock,
}

func runDaemon(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tel, err := telemetry.Setup(ctx)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}

	reg := registry.New()
	metrics := rpc.NewMetrics()

	mods := []modules.Module{
		rpc.NewHealthModule(metrics, reg),
		dbhelper.New(reg),
		cipherhelper.New(reg),
		lockhelper.New(reg),
		datetimehelper.New(),
		sshhelper.New(reg),
		ftphelper.New(reg),
		smtphelper.New(reg),
		xpathhelper.New(reg),
	}
	dispatcher := rpc.NewDispatcher(mods, tel, metrics)
	server := rpc.NewServer(cfg, dispatcher, metrics, tel, reg)
	reap := reaper.New(cfg, reg, allResourceKinds, nil)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.Start(groupCtx)
	})

	group.Go(func() error {
		reap.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		runHealthLog(groupCtx, cfg, metrics, reg)
		return nil
	})

	err = group.Wait()

	destroyAllResources(reg)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	tel.Shutdown(shutdownCtx)

	return err
}

// destroyAllResources forcibly tears down every live resource still in the
// registry once the server and reaper have drained, so connections,
// statements, sessions and the rest are released child-first rather than
// abandoned. Destroy is idempotent, so destroying an entry whose parent was
// already destroyed earlier in the loop is a harmless no-op.
func destroyAllResources(reg *registry.Registry) {
	for _, entry := range reg.AllByLastUsed() {
		for _, e := range reg.Destroy(entry.ID) {
			fmt.Fprintf(os.Stderr, "[%s] helperd: shutdown destroy %s: %v\n", time.Now().Format(time.RFC3339), entry.ID, e)
		}
	}
}

// runHealthLog periodically logs a one-line health summary to stderr via
// Metrics.LogPeriodicSummary so the daemon narrates its own liveness rather
// than requiring an external probe.
func runHealthLog(ctx context.Context, cfg *config.Config, metrics *rpc.Metrics, reg *registry.Registry) {
	ticker := time.NewTicker(cfg.HealthLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resourceCounts := map[string]int{}
			for kind, count := range reg.Stats() {
				resourceCounts[string(kind)] = count
			}
			metrics.LogPeriodicSummary(cfg.WarnActiveConns, cfg.InfoActiveConns, resourceCounts)
		}
	}
}
