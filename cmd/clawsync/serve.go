package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/clawsync/clawsync/cmd/clawsync/runtime"

	"github.com/clawsync/clawsync/internal/daemon"
	"github.com/clawsync/clawsync/internal/daemon/components"
	"github.com/clawsync/clawsync/internal/mcp"
	"github.com/clawsync/clawsync/internal/ratelimit"
	"github.com/clawsync/clawsync/internal/server"
	"github.com/clawsync/clawsync/internal/telemetry"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and MCP endpoint",
	Long:  `Starts ClawSync as a long-running service. It serves the chat API, the HTTP MCP surface and /mcp, and runs scheduled MCP health checks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		shutdownTelemetry, err := telemetry.Init(cfg.Telemetry, version, nil)
		if err != nil {
			return fmt.Errorf("failed to init telemetry: %w", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				slog.Warn("Telemetry shutdown failed", "error", err)
			}
		}()

		daemonMgr, err := daemon.NewDaemon(cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon manager: %w", err)
		}

		limiter := ratelimit.NewTokenBuckets()
		registryComp := components.NewRegistryComponent(cfg)
		healthComp := components.NewHealthCheckComponent(cfg, registryComp, mcp.NewClient(cfg.MCP))
		sweeperComp := components.NewLimiterSweeperComponent(limiter)
		httpComp := components.NewHTTPServerComponent(&cfg.Server, func(ctx context.Context) (http.Handler, error) {
			services, err := runtime.NewServices(cfg, registryComp.Registry(), registryComp.AuditLogger(), limiter)
			if err != nil {
				return nil, err
			}
			return services.Handler(version, componentStatus(daemonMgr)), nil
		}, registryComp.Name())

		daemonMgr.AddComponent(registryComp)
		daemonMgr.AddComponent(healthComp)
		daemonMgr.AddComponent(sweeperComp)
		daemonMgr.AddComponent(httpComp)

		slog.Info("ClawSync starting up...", "port", cfg.Server.Port, "version", version)
		err = daemonMgr.Start(cmd.Context())
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("ClawSync stopped gracefully")
				return nil
			}
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("ClawSync stopped gracefully")
		return nil
	},
}

func componentStatus(d *daemon.Daemon) func(ctx context.Context) map[string]server.ComponentStatus {
	return func(ctx context.Context) map[string]server.ComponentStatus {
		out := make(map[string]server.ComponentStatus)
		for name, h := range d.ComponentHealth(ctx) {
			status := server.ComponentStatus{Healthy: h.Healthy}
			if h.Error != nil {
				status.Error = h.Error.Error()
			}
			out[name] = status
		}
		return out
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
