package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/clawsync/clawsync/internal/config"
	"github.com/clawsync/clawsync/internal/daemon"
	"github.com/clawsync/clawsync/internal/health"
	"github.com/clawsync/clawsync/internal/mcp"
)

// HealthCheckComponent schedules MCP server probes. When disabled in config
// it initializes and reports healthy without scheduling anything.
type HealthCheckComponent struct {
	cfg      *config.Config
	registry *RegistryComponent
	source   mcp.ToolSource
	checker  *health.Checker
	mu       sync.RWMutex
}

func NewHealthCheckComponent(cfg *config.Config, registry *RegistryComponent, source mcp.ToolSource) *HealthCheckComponent {
	return &HealthCheckComponent{cfg: cfg, registry: registry, source: source}
}

func (h *HealthCheckComponent) Name() string {
	return "HealthChecks"
}

func (h *HealthCheckComponent) Dependencies() []string {
	return []string{"Registry"}
}

func (h *HealthCheckComponent) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.cfg.Health.Enabled {
		slog.Info("MCP health checks disabled", "component", h.Name())
		return nil
	}
	reg := h.registry.Registry()
	if reg == nil {
		return fmt.Errorf("registry not initialized")
	}
	hc := h.cfg.Health
	hc.MaxParallel = config.IntOrDefault(hc.MaxParallel, h.cfg.MCP.MaxParallel)
	checker, err := health.NewChecker(reg, reg, h.source, hc)
	if err != nil {
		return err
	}
	h.checker = checker
	return nil
}

func (h *HealthCheckComponent) Start(ctx context.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.checker == nil {
		return nil
	}
	return h.checker.Start(ctx)
}

func (h *HealthCheckComponent) Stop(ctx context.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.checker == nil {
		return nil
	}
	return h.checker.Stop(ctx)
}

func (h *HealthCheckComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.checker != nil && !h.checker.Running() {
		return &daemon.ComponentHealth{Name: h.Name(), Healthy: false, Error: fmt.Errorf("not running")}, nil
	}
	return &daemon.ComponentHealth{Name: h.Name(), Healthy: true}, nil
}
