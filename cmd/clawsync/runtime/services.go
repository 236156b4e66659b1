package runtime

import (
	"context"
	"fmt"
	"net/http"

	"github.com/clawsync/clawsync/internal/agent"
	"github.com/clawsync/clawsync/internal/audit"
	"github.com/clawsync/clawsync/internal/config"
	"github.com/clawsync/clawsync/internal/executor"
	"github.com/clawsync/clawsync/internal/mcp"
	"github.com/clawsync/clawsync/internal/model"
	"github.com/clawsync/clawsync/internal/ratelimit"
	"github.com/clawsync/clawsync/internal/security"
	"github.com/clawsync/clawsync/internal/server"
	"github.com/clawsync/clawsync/internal/store"
	"github.com/clawsync/clawsync/internal/tool"
)

// Services is the request-path object graph built on top of an open registry
// and invocation log.
type Services struct {
	Config    *config.Config
	Registry  *store.SQLiteStore
	Audit     *audit.Logger
	Limiter   *ratelimit.TokenBuckets
	Gate      *security.Checker
	Executor  *executor.Executor
	MCP       *mcp.Client
	Pipeline  *tool.Pipeline
	Assembler *tool.Assembler
	Invoker   *tool.Invoker
	Resolver  *model.Resolver
	Agent     *agent.Agent
}

// NewServices wires the gate, executor and tool assembly. A nil limiter gets
// a private one.
func NewServices(cfg *config.Config, registry *store.SQLiteStore, auditLog *audit.Logger, limiter *ratelimit.TokenBuckets) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if registry == nil || auditLog == nil {
		return nil, fmt.Errorf("registry and audit logger are required")
	}
	if limiter == nil {
		limiter = ratelimit.NewTokenBuckets()
	}

	gate, err := security.NewChecker(cfg.Security, registry, limiter)
	if err != nil {
		return nil, fmt.Errorf("init security gate: %w", err)
	}

	exec, err := executor.New(cfg.Executor, executor.NewTextTemplateEngine(registry), gate.Allowlist())
	if err != nil {
		return nil, fmt.Errorf("init executor: %w", err)
	}

	client := mcp.NewClient(cfg.MCP)

	pipeline, err := tool.NewPipeline(gate, exec, client, auditLog, cfg.MCP)
	if err != nil {
		return nil, fmt.Errorf("init tool pipeline: %w", err)
	}

	assembler, err := tool.NewAssembler(registry, registry, client, pipeline, cfg.MCP)
	if err != nil {
		return nil, fmt.Errorf("init tool assembler: %w", err)
	}

	requestTimeout, err := config.DurationOrDefault(cfg.Models.RequestTimeout, config.DefaultModelRequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse model request timeout: %w", err)
	}

	resolver := model.NewResolver(cfg.Models)
	chat := agent.New(agent.Options{
		Chat:           cfg.Chat,
		Model:          model.ConfigFrom(cfg.Models),
		MaxTokens:      config.IntOrDefault(cfg.Models.MaxTokens, config.DefaultModelMaxTokens),
		RequestTimeout: requestTimeout,
	}, resolver, assembler, limiter)

	return &Services{
		Config:    cfg,
		Registry:  registry,
		Audit:     auditLog,
		Limiter:   limiter,
		Gate:      gate,
		Executor:  exec,
		MCP:       client,
		Pipeline:  pipeline,
		Assembler: assembler,
		Invoker:   tool.NewInvoker(assembler),
		Resolver:  resolver,
		Agent:     chat,
	}, nil
}

// SkillInvoker calls skill tools only, matching what the HTTP MCP surface exposes.
func (s *Services) SkillInvoker() *tool.Invoker {
	return tool.NewInvoker(tool.AssemblerFunc(s.Assembler.SkillTools))
}

// Handler builds the HTTP API. components may be nil.
func (s *Services) Handler(version string, components func(ctx context.Context) map[string]server.ComponentStatus) http.Handler {
	srv := server.New(s.Agent, s.Registry, tool.AssemblerFunc(s.Assembler.SkillTools), server.Options{
		Version:    version,
		MCP:        s.Config.MCP,
		Components: components,
	})
	return srv.Handler()
}
