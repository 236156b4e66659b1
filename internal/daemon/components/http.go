package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/clawsync/clawsync/internal/concurrency"
	"github.com/clawsync/clawsync/internal/config"
	"github.com/clawsync/clawsync/internal/daemon"
)

// HandlerFactory builds the HTTP handler once the components it depends on
// are initialized.
type HandlerFactory func(ctx context.Context) (http.Handler, error)

type HTTPServerComponent struct {
	cfg          *config.ServerConfig
	factory      HandlerFactory
	dependencies []string
	server       *http.Server
	listener     net.Listener
	shutdownTTL  time.Duration
	initialized  bool
	started      bool
	mu           sync.RWMutex
}

func NewHTTPServerComponent(cfg *config.ServerConfig, factory HandlerFactory, dependencies ...string) *HTTPServerComponent {
	return &HTTPServerComponent{
		cfg:          cfg,
		factory:      factory,
		dependencies: append([]string(nil), dependencies...),
	}
}

func (h *HTTPServerComponent) Name() string {
	return "HTTPServer"
}

func (h *HTTPServerComponent) Dependencies() []string {
	return append([]string(nil), h.dependencies...)
}

func (h *HTTPServerComponent) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	handler, err := h.factory(ctx)
	if err != nil {
		return fmt.Errorf("build http handler: %w", err)
	}

	t, err := parseServerTimeouts(h.cfg)
	if err != nil {
		return err
	}

	h.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", h.cfg.Port),
		Handler:           handler,
		ReadTimeout:       t.read,
		ReadHeaderTimeout: t.read,
		WriteTimeout:      t.write,
		IdleTimeout:       t.idle,
	}
	h.shutdownTTL = t.shutdown
	h.initialized = true
	return nil
}

type serverTimeouts struct {
	read, write, idle, shutdown time.Duration
}

func parseServerTimeouts(cfg *config.ServerConfig) (serverTimeouts, error) {
	var t serverTimeouts
	fields := []struct {
		name     string
		value    string
		fallback string
		dst      *time.Duration
	}{
		{"read", cfg.ReadTimeout, config.DefaultServerReadTimeout, &t.read},
		{"write", cfg.WriteTimeout, config.DefaultServerWriteTimeout, &t.write},
		{"idle", cfg.IdleTimeout, config.DefaultServerIdleTimeout, &t.idle},
		{"shutdown", cfg.ShutdownTimeout, config.DefaultServerShutdownTimeout, &t.shutdown},
	}
	for _, f := range fields {
		d, err := config.DurationOrDefault(f.value, f.fallback)
		if err != nil {
			return t, fmt.Errorf("parse server %s timeout: %w", f.name, err)
		}
		*f.dst = d
	}
	return t, nil
}

// Start binds the port synchronously so address conflicts fail startup.
func (h *HTTPServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.initialized {
		return fmt.Errorf("HTTPServer not initialized")
	}

	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.server.Addr, err)
	}
	h.listener = ln

	concurrency.SafeGo(h.Name(), func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "component", h.Name(), "error", err)
		}
	}, nil)

	h.started = true
	slog.Info("HTTP server listening", "component", h.Name(), "addr", ln.Addr().String())
	return nil
}

func (h *HTTPServerComponent) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, h.shutdownTTL)
	defer cancel()
	if err := h.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTPServer shutdown error", "component", h.Name(), "error", err)
		return err
	}

	h.started = false
	slog.Info("HTTPServer stopped", "component", h.Name())
	return nil
}

func (h *HTTPServerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.initialized {
		return &daemon.ComponentHealth{Name: h.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if !h.started {
		return &daemon.ComponentHealth{Name: h.Name(), Healthy: false, Error: fmt.Errorf("not started")}, nil
	}
	return &daemon.ComponentHealth{Name: h.Name(), Healthy: true}, nil
}

// Addr returns the bound address once started.
func (h *HTTPServerComponent) Addr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}
