package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/clawsync/clawsync/internal/config"
)

// Daemon runs a set of components for the lifetime of the serve command.
type Daemon struct {
	cfg         *config.Config
	components  []Component
	byName      map[string]Component
	order       []string
	active      []string
	state       HealthStatus
	startedAt   time.Time
	mu          sync.RWMutex
	monitorDone chan struct{}
}

func NewDaemon(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return &Daemon{
		cfg:         cfg,
		byName:      make(map[string]Component),
		state:       StatusStarting,
		monitorDone: make(chan struct{}),
	}, nil
}

// AddComponent registers comp. A second component with the same name is ignored.
func (d *Daemon) AddComponent(comp Component) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, dup := d.byName[comp.Name()]; dup {
		slog.Warn("Component already registered", "component", comp.Name())
		return
	}
	d.components = append(d.components, comp)
	d.byName[comp.Name()] = comp
	slog.Debug("Component registered", "component", comp.Name(), "total_components", len(d.components))
}

// Start blocks until ctx is cancelled or SIGINT/SIGTERM arrives, then stops
// every initialized component. The returned error is the cancellation cause
// on a clean exit.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.validateConfig(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	shutdownTimeout, err := config.DurationOrDefault(d.cfg.Daemon.ShutdownTimeout, config.DefaultDaemonShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse daemon shutdown timeout: %w", err)
	}
	interval, err := config.DurationOrDefault(d.cfg.Daemon.HealthCheckInterval, config.DefaultDaemonHealthInterval)
	if err != nil {
		return fmt.Errorf("parse daemon health check interval: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.initializeComponents(ctx); err != nil {
		slog.Warn("Rolling back initialized components", "count", len(d.activeComponents()))
		d.shutdown(context.WithoutCancel(ctx), shutdownTimeout)
		return fmt.Errorf("component initialization failed: %w", err)
	}

	if err := d.startComponents(ctx); err != nil {
		d.shutdown(context.WithoutCancel(ctx), shutdownTimeout)
		return fmt.Errorf("component startup failed: %w", err)
	}

	d.mu.Lock()
	d.state = StatusRunning
	d.startedAt = time.Now()
	d.mu.Unlock()
	slog.Info("ClawSync daemon is running", "components", len(d.order), "port", d.cfg.Server.Port)

	go d.monitor(ctx, interval)

	<-ctx.Done()

	slog.Info("Shutting down", "reason", context.Cause(ctx))
	d.setState(StatusStopping)
	close(d.monitorDone)
	if err := d.shutdown(context.Background(), shutdownTimeout); err != nil {
		return err
	}
	return ctx.Err()
}

func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Uptime is zero until the daemon reaches the running state.
func (d *Daemon) Uptime() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.startedAt.IsZero() {
		return 0
	}
	return time.Since(d.startedAt)
}

// ComponentHealth probes every registered component. A probe error marks
// the component unhealthy.
func (d *Daemon) ComponentHealth(ctx context.Context) map[string]*ComponentHealth {
	d.mu.RLock()
	components := slices.Clone(d.components)
	d.mu.RUnlock()

	result := make(map[string]*ComponentHealth, len(components))
	for _, comp := range components {
		health, err := comp.Health(ctx)
		if health == nil {
			health = &ComponentHealth{Name: comp.Name()}
		}
		if err != nil {
			health.Healthy = false
			health.Error = err
		}
		result[comp.Name()] = health
	}
	return result
}

func (d *Daemon) setState(status HealthStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = status
}

func (d *Daemon) validateConfig() error {
	if d.cfg.Server.Port < 1 || d.cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", d.cfg.Server.Port)
	}
	if strings.TrimSpace(d.cfg.Store.Path) == "" {
		return fmt.Errorf("store path is required")
	}
	return nil
}

func (d *Daemon) initializeComponents(ctx context.Context) error {
	order, err := d.resolveOrder()
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.order = order
	d.mu.Unlock()

	for _, name := range order {
		if err := d.byName[name].Init(ctx); err != nil {
			slog.Error("Component initialization failed", "component", name, "error", err)
			return fmt.Errorf("component %s init failed: %w", name, err)
		}
		d.mu.Lock()
		d.active = append(d.active, name)
		d.mu.Unlock()
		slog.Debug("Component initialized", "component", name)
	}
	return nil
}

func (d *Daemon) startComponents(ctx context.Context) error {
	for _, name := range d.order {
		if err := d.byName[name].Start(ctx); err != nil {
			slog.Error("Component startup failed", "component", name, "error", err)
			return fmt.Errorf("component %s startup failed: %w", name, err)
		}
		slog.Debug("Component started", "component", name)
	}
	return nil
}

func (d *Daemon) activeComponents() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.active)
}

// shutdown stops the initialized components within timeout.
func (d *Daemon) shutdown(ctx context.Context, timeout time.Duration) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.stopComponents(shutdownCtx)
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		slog.Error("Shutdown timeout exceeded", "timeout", timeout)
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

func (d *Daemon) stopComponents(ctx context.Context) {
	active := d.activeComponents()
	for i := len(active) - 1; i >= 0; i-- {
		name := active[i]
		if err := d.byName[name].Stop(ctx); err != nil {
			slog.Error("Component stop failed", "component", name, "error", err)
		}
	}

	d.mu.Lock()
	d.active = nil
	d.state = StatusStopped
	d.mu.Unlock()
}

func (d *Daemon) monitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.monitorDone:
			return
		case <-ticker.C:
			for name, h := range d.ComponentHealth(ctx) {
				if !h.Healthy {
					slog.Warn("Component unhealthy", "component", name, "error", h.Error)
				}
			}
		}
	}
}

// resolveOrder sorts components so each follows its dependencies. Ties keep
// registration order.
func (d *Daemon) resolveOrder() ([]string, error) {
	const (
		visiting = iota + 1
		done
	)
	marks := make(map[string]int, len(d.components))
	order := make([]string, 0, len(d.components))

	var visit func(name string, from string) error
	visit = func(name, from string) error {
		comp, ok := d.byName[name]
		if !ok {
			return fmt.Errorf("component %s depends on %s which is not registered", from, name)
		}
		switch marks[name] {
		case visiting:
			return fmt.Errorf("circular dependency detected involving %s", name)
		case done:
			return nil
		}

		marks[name] = visiting
		for _, dep := range comp.Dependencies() {
			if err := visit(dep, name); err != nil {
				return err
			}
		}
		marks[name] = done
		order = append(order, name)
		return nil
	}

	for _, comp := range d.components {
		if err := visit(comp.Name(), ""); err != nil {
			return nil, err
		}
	}
	return order, nil
}
