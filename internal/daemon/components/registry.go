package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/clawsync/clawsync/internal/audit"
	"github.com/clawsync/clawsync/internal/config"
	"github.com/clawsync/clawsync/internal/daemon"
	"github.com/clawsync/clawsync/internal/store"
)

// RegistryComponent owns the instance lock, the SQLite registry and the
// invocation log for the lifetime of the daemon.
type RegistryComponent struct {
	cfg         *config.Config
	lock        *store.InstanceLock
	registry    *store.SQLiteStore
	auditStore  audit.Store
	auditLogger *audit.Logger
	initialized bool
	mu          sync.RWMutex
}

func NewRegistryComponent(cfg *config.Config) *RegistryComponent {
	return &RegistryComponent{cfg: cfg}
}

func (r *RegistryComponent) Name() string {
	return "Registry"
}

func (r *RegistryComponent) Dependencies() []string {
	return []string{}
}

func (r *RegistryComponent) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lockTimeout, err := config.DurationOrDefault(r.cfg.Store.LockTimeout, config.DefaultStoreLockTimeout)
	if err != nil {
		return fmt.Errorf("parse store lock timeout: %w", err)
	}
	lock, err := store.AcquireInstanceLock(ctx, r.cfg.Store.Path, lockTimeout)
	if err != nil {
		return err
	}

	registry, err := store.Open(r.cfg.Store.Path, r.cfg.MCP.MaxServers)
	if err != nil {
		lock.Release()
		return fmt.Errorf("open registry: %w", err)
	}

	auditStore, err := audit.NewStore(r.cfg.Audit, r.cfg.Store.LockTimeout)
	if err != nil {
		registry.Close()
		lock.Release()
		return fmt.Errorf("open audit store: %w", err)
	}
	auditLogger, err := audit.NewLogger(auditStore, r.cfg.Audit)
	if err != nil {
		auditStore.Close()
		registry.Close()
		lock.Release()
		return fmt.Errorf("init audit logger: %w", err)
	}

	r.lock = lock
	r.registry = registry
	r.auditStore = auditStore
	r.auditLogger = auditLogger
	r.initialized = true
	slog.Info("Registry initialized", "component", r.Name(), "path", r.cfg.Store.Path, "audit_backend", r.cfg.Audit.Backend)
	return nil
}

func (r *RegistryComponent) Start(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.initialized {
		return fmt.Errorf("registry not initialized")
	}
	return nil
}

func (r *RegistryComponent) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return nil
	}
	if err := r.auditStore.Close(); err != nil {
		slog.Error("Audit store close error", "component", r.Name(), "error", err)
	}
	if err := r.registry.Close(); err != nil {
		slog.Error("Registry close error", "component", r.Name(), "error", err)
	}
	r.lock.Release()
	r.initialized = false
	slog.Info("Registry stopped", "component", r.Name())
	return nil
}

func (r *RegistryComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.initialized {
		return &daemon.ComponentHealth{Name: r.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if !r.lock.Held() {
		return &daemon.ComponentHealth{Name: r.Name(), Healthy: false, Error: fmt.Errorf("lock not held")}, nil
	}
	if err := r.registry.Ping(ctx); err != nil {
		return &daemon.ComponentHealth{Name: r.Name(), Healthy: false, Error: err}, nil
	}
	return &daemon.ComponentHealth{Name: r.Name(), Healthy: true}, nil
}

func (r *RegistryComponent) Registry() *store.SQLiteStore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registry
}

func (r *RegistryComponent) AuditLogger() *audit.Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.auditLogger
}
