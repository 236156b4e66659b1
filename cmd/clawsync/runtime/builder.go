package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clawsync/clawsync/internal/audit"
	"github.com/clawsync/clawsync/internal/config"
	"github.com/clawsync/clawsync/internal/store"
)

type RuntimeBuilder interface {
	WithContext(ctx context.Context) RuntimeBuilder
	WithConfig(cfg *config.Config) RuntimeBuilder
	Build() (*Runtime, error)
}

type DefaultRuntimeBuilder struct {
	ctx context.Context
	cfg *config.Config
}

func NewRuntimeBuilder() RuntimeBuilder {
	return &DefaultRuntimeBuilder{}
}

func (b *DefaultRuntimeBuilder) WithContext(ctx context.Context) RuntimeBuilder {
	b.ctx = ctx
	return b
}

func (b *DefaultRuntimeBuilder) WithConfig(cfg *config.Config) RuntimeBuilder {
	b.cfg = cfg
	return b
}

// Build opens the registry and invocation log for a one-shot CLI command.
// It does not take the instance lock, so it can run beside a serving daemon.
func (b *DefaultRuntimeBuilder) Build() (*Runtime, error) {
	if b.ctx == nil {
		b.ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	ctx, cancel := context.WithCancel(b.ctx)
	rt := &Runtime{Ctx: ctx, Cancel: cancel, Config: b.cfg}

	registry, err := store.Open(b.cfg.Store.Path, b.cfg.MCP.MaxServers)
	if err != nil {
		rt.Stop()
		return nil, fmt.Errorf("open registry: %w", err)
	}
	rt.registry = registry

	auditStore, err := audit.NewStore(b.cfg.Audit, b.cfg.Store.LockTimeout)
	if err != nil {
		rt.Stop()
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	rt.auditStore = auditStore

	auditLog, err := audit.NewLogger(auditStore, b.cfg.Audit)
	if err != nil {
		rt.Stop()
		return nil, fmt.Errorf("init audit logger: %w", err)
	}

	services, err := NewServices(b.cfg, registry, auditLog, nil)
	if err != nil {
		rt.Stop()
		return nil, err
	}
	rt.Services = services
	return rt, nil
}

type Runtime struct {
	Ctx    context.Context
	Cancel context.CancelFunc

	Config   *config.Config
	Services *Services

	registry   *store.SQLiteStore
	auditStore audit.Store
}

func (r *Runtime) Stop() {
	if r.auditStore != nil {
		if err := r.auditStore.Close(); err != nil {
			slog.Warn("Audit store close failed", "error", err)
		}
		r.auditStore = nil
	}
	if r.registry != nil {
		if err := r.registry.Close(); err != nil {
			slog.Warn("Registry close failed", "error", err)
		}
		r.registry = nil
	}
	if r.Cancel != nil {
		r.Cancel()
	}
}
