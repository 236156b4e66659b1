// Package health probes registered MCP servers on a cron schedule and
// records whether they answer tools/list.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/clawsync/clawsync/internal/config"
	"github.com/clawsync/clawsync/internal/mcp"
	"github.com/clawsync/clawsync/internal/skill"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// ServerLister returns every registered MCP server.
type ServerLister interface {
	ListServers(ctx context.Context) ([]skill.MCPServer, error)
}

type Result struct {
	Server    string `json:"server"`
	Status    string `json:"status"`
	ToolCount int    `json:"toolCount"`
	Error     string `json:"error,omitempty"`
}

// Checker runs CheckAll on a schedule. Only enabled servers with a URL are
// probed, at most DefaultMCPMaxServers per run and maxParallel at a time.
type Checker struct {
	servers     ServerLister
	recorder    skill.HealthRecorder
	source      mcp.ToolSource
	timeout     time.Duration
	maxParallel int
	schedule    cron.Schedule
	spec        string

	mu      sync.RWMutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	lastRun time.Time
	last    []Result
}

func NewChecker(servers ServerLister, recorder skill.HealthRecorder, source mcp.ToolSource, cfg config.HealthConfig) (*Checker, error) {
	spec := strings.TrimSpace(cfg.Schedule)
	if spec == "" {
		spec = config.DefaultHealthSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse health schedule %q: %w", spec, err)
	}
	timeout, err := config.DurationOrDefault(cfg.Timeout, config.DefaultHealthTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse health timeout: %w", err)
	}

	return &Checker{
		servers:     servers,
		recorder:    recorder,
		source:      source,
		timeout:     timeout,
		maxParallel: config.IntOrDefault(cfg.MaxParallel, config.DefaultMCPMaxParallel),
		schedule:    schedule,
		spec:        spec,
	}, nil
}

// CheckAll probes every enabled server once and records each outcome.
func (c *Checker) CheckAll(ctx context.Context) ([]Result, error) {
	servers, err := c.servers.ListServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mcp servers: %w", err)
	}

	targets := make([]skill.MCPServer, 0, len(servers))
	for _, srv := range servers {
		if len(targets) >= config.DefaultMCPMaxServers {
			break
		}
		if !srv.Enabled || strings.TrimSpace(srv.URL) == "" {
			continue
		}
		targets = append(targets, srv)
	}

	results := make([]Result, len(targets))
	var g errgroup.Group
	g.SetLimit(c.maxParallel)
	for i, srv := range targets {
		g.Go(func() error {
			results[i] = c.check(ctx, srv)
			return nil
		})
	}
	g.Wait()

	c.mu.Lock()
	c.lastRun = time.Now()
	c.last = results
	c.mu.Unlock()

	slog.Info("MCP health check completed", "checked", len(results))
	return results, nil
}

func (c *Checker) check(ctx context.Context, srv skill.MCPServer) Result {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res := Result{Server: srv.Name, Status: skill.HealthHealthy}
	tools, err := c.source.ListTools(probeCtx, srv.URL)
	if err != nil {
		res.Status = skill.HealthUnhealthy
		res.Error = err.Error()
		slog.Warn("MCP server unhealthy", "server", srv.Name, "error", err)
	} else {
		res.ToolCount = len(tools)
	}

	id := srv.ID
	if id == "" {
		id = srv.Name
	}
	if err := c.recorder.RecordHealth(ctx, id, res.Status, res.ToolCount); err != nil {
		slog.Error("Failed to record MCP health", "server", srv.Name, "error", err)
	}
	return res
}

// Start schedules CheckAll. Runs never overlap.
func (c *Checker) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.cron.Schedule(c.schedule, cron.FuncJob(func() {
		if _, err := c.CheckAll(runCtx); err != nil {
			slog.Error("MCP health check failed", "error", err)
		}
	}))
	c.cron.Start()
	slog.Info("MCP health checks scheduled", "schedule", c.spec)
	return nil
}

// Stop cancels the schedule and waits for a running check or ctx.
func (c *Checker) Stop(ctx context.Context) error {
	c.mu.Lock()
	sched, cancel := c.cron, c.cancel
	c.cron, c.cancel = nil, nil
	c.mu.Unlock()

	if sched == nil {
		return nil
	}
	cancel()
	select {
	case <-sched.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Checker) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cron != nil
}

// Last returns the results of the most recent run and when it happened.
func (c *Checker) Last() ([]Result, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Result(nil), c.last...), c.lastRun
}
