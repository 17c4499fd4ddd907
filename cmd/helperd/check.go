package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/helperd/helperd/internal/config"
	"github.com/helperd/helperd/internal/modules"
	"github.com/helperd/helperd/internal/registry"
	"github.com/helperd/helperd/internal/rpc"
	"github.com/helperd/helperd/internal/telemetry"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and confirm the daemon can bind its endpoint, without serving",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.Context())
	},
}

func runCheck(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	fmt.Printf("socket_path=%s tcp_addr=%s workers=%d request_timeout=%s reaper_interval=%s\n",
		cfg.SocketPath, cfg.TCPAddr, cfg.Workers, cfg.RequestTimeout, cfg.ReaperInterval)

	tel, err := telemetry.Setup(ctx)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		tel.Shutdown(shutdownCtx)
	}()

	reg := registry.New()
	metrics := rpc.NewMetrics()
	dispatcher := rpc.NewDispatcher([]modules.Module{rpc.NewHealthModule(metrics, reg)}, tel, metrics)
	server := rpc.NewServer(cfg, dispatcher, metrics, tel, reg)

	serveCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(serveCtx) }()

	select {
	case <-server.Ready():
		fmt.Println("ok: endpoint bound successfully")
	case err := <-errCh:
		cancel()
		return fmt.Errorf("starting server: %w", err)
	case <-time.After(5 * time.Second):
		cancel()
		return fmt.Errorf("timed out waiting for endpoint to bind")
	}

	cancel()
	<-errCh
	return nil
}
