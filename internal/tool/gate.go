package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/clawsync/clawsync/internal/audit"
	"github.com/clawsync/clawsync/internal/config"
	clawErrors "github.com/clawsync/clawsync/internal/errors"
	"github.com/clawsync/clawsync/internal/executor"
	"github.com/clawsync/clawsync/internal/logger"
	"github.com/clawsync/clawsync/internal/mcp"
	"github.com/clawsync/clawsync/internal/security"
	"github.com/clawsync/clawsync/internal/skill"
	"github.com/clawsync/clawsync/internal/telemetry"

	"go.opentelemetry.io/otel/codes"
)

// ChannelMCPAPI marks invocations arriving through the exposed MCP endpoint.
const ChannelMCPAPI = "mcp_api"

const (
	resultPassed  = "passed"
	resultFailed  = "failed"
	resultBlocked = "blocked"
)

// Pipeline turns skills and remote MCP tools into gated tools: every
// invocation is checked, executed only when allowed, and logged exactly once.
type Pipeline struct {
	gate        security.Gate
	executor    executor.SkillExecutor
	source      mcp.ToolSource
	audit       *audit.Logger
	callTimeout time.Duration
}

func NewPipeline(gate security.Gate, exec executor.SkillExecutor, source mcp.ToolSource, auditLog *audit.Logger, cfg config.MCPConfig) (*Pipeline, error) {
	if gate == nil || exec == nil || auditLog == nil {
		return nil, clawErrors.Configuration("tool pipeline requires a gate, an executor and an audit logger")
	}
	callTimeout, err := config.DurationOrDefault(cfg.CallTimeout, config.DefaultMCPCallTimeout)
	if err != nil {
		return nil, clawErrors.WrapWithCategory(err, "mcp call timeout", clawErrors.ErrConfiguration)
	}
	return &Pipeline{
		gate:        gate,
		executor:    exec,
		source:      source,
		audit:       auditLog,
		callTimeout: callTimeout,
	}, nil
}

type invocation struct {
	tool      string
	source    Source
	skillName string
	skillType string
	mcpServer string
	check     func(ctx context.Context) security.Result
	run       func(ctx context.Context) (json.RawMessage, error)
}

// SkillTool wraps a registered skill.
func (p *Pipeline) SkillTool(s skill.Skill) Tool {
	schema := map[string]any{"type": "object"}
	if cfg, err := skill.DecodeConfig(s); err == nil {
		schema = cfg.Schema()
	}
	name := SanitizeName(s.Name)

	return Tool{
		Name:        name,
		Description: describe(s.Description, fmt.Sprintf("Run the %s skill", s.Name)),
		InputSchema: schema,
		Source:      SourceSkill,
		Origin:      s.Name,
		Handler: func(ctx context.Context, args json.RawMessage) json.RawMessage {
			return p.invoke(ctx, invocation{
				tool:      name,
				source:    SourceSkill,
				skillName: s.Name,
				skillType: string(s.Type),
				check: func(ctx context.Context) security.Result {
					return p.gate.Check(ctx, s, args)
				},
				run: func(ctx context.Context) (json.RawMessage, error) {
					if err := ValidateArgs(schema, args); err != nil {
						return nil, clawErrors.InvalidInput("invalid arguments: " + err.Error())
					}
					return p.executor.Execute(ctx, s, args)
				},
			}, args)
		},
	}
}

// MCPTool wraps one tool advertised by a remote MCP server. Calls use the
// remote name, not the sanitized one.
func (p *Pipeline) MCPTool(srv skill.MCPServer, rt mcp.RemoteTool) Tool {
	schema := rt.InputSchema
	if len(schema) == 0 {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	name := SanitizeName(rt.Name)

	return Tool{
		Name:        name,
		Description: describe(rt.Description, fmt.Sprintf("%s (via %s)", rt.Name, srv.Name)),
		InputSchema: schema,
		Source:      SourceMCP,
		Origin:      srv.Name,
		Handler: func(ctx context.Context, args json.RawMessage) json.RawMessage {
			return p.invoke(ctx, invocation{
				tool:      name,
				source:    SourceMCP,
				skillName: rt.Name,
				skillType: string(SourceMCP),
				mcpServer: srv.Name,
				check: func(ctx context.Context) security.Result {
					return p.gate.CheckMCP(ctx, srv, rt.Name, args)
				},
				run: func(ctx context.Context) (json.RawMessage, error) {
					if p.source == nil {
						return nil, clawErrors.Configuration("no MCP client configured")
					}
					callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
					defer cancel()
					return p.source.CallTool(callCtx, srv.URL, rt.Name, args)
				},
			}, args)
		},
	}
}

func (p *Pipeline) invoke(ctx context.Context, inv invocation, args json.RawMessage) json.RawMessage {
	start := time.Now()
	ctx, span := telemetry.StartInvocation(ctx, inv.tool, string(inv.source))
	defer span.End()

	entry := audit.Entry{
		SkillName: inv.skillName,
		SkillType: inv.skillType,
		MCPServer: inv.mcpServer,
		Input:     args,
		Start:     start,
	}

	res := inv.check(ctx)
	entry.SecurityCode = res.Code
	if !res.Allowed {
		entry.ErrorMessage = res.Reason
		p.audit.Log(ctx, entry)
		span.SetStatus(codes.Error, resultBlocked)
		telemetry.RecordInvocation(ctx, string(inv.source), resultBlocked, time.Since(start))
		slog.Warn("Tool invocation blocked",
			append([]any{"tool", inv.tool, "reason", res.Reason}, logger.Attrs(ctx)...)...)

		if logger.GetChannel(ctx) == ChannelMCPAPI {
			return ErrorResult("Security check failed: " + res.Reason)
		}
		return ErrorResult(res.Reason)
	}

	slog.Debug("Executing tool", append([]any{"tool", inv.tool, "source", inv.source}, logger.Attrs(ctx)...)...)

	// Once admitted, a call runs to completion even if the turn is
	// cancelled. The executor and MCP call timeouts still bound it.
	ctx = context.WithoutCancel(ctx)
	out, err := runSafely(ctx, inv.run)
	if err != nil {
		msg := clawErrors.Message(err)
		entry.ErrorMessage = msg
		p.audit.Log(ctx, entry)
		span.RecordError(err)
		span.SetStatus(codes.Error, resultFailed)
		telemetry.RecordInvocation(ctx, string(inv.source), resultFailed, time.Since(start))
		slog.Error("Tool execution failed",
			append([]any{"tool", inv.tool, "error", err, "duration", time.Since(start)}, logger.Attrs(ctx)...)...)
		return ErrorResult(msg)
	}

	switch {
	case len(out) == 0 || !json.Valid(out):
		b, _ := json.Marshal(map[string]string{"result": string(out)})
		out = b
	case isFailureShaped(out):
		// A top-level "error" field is reserved for gate failures.
		b, _ := json.Marshal(map[string]json.RawMessage{"result": out})
		out = b
	}
	entry.Success = true
	entry.Output = out
	p.audit.Log(ctx, entry)
	telemetry.RecordInvocation(ctx, string(inv.source), resultPassed, time.Since(start))
	slog.Info("Tool execution success",
		append([]any{"tool", inv.tool, "duration", time.Since(start)}, logger.Attrs(ctx)...)...)
	return out
}

func isFailureShaped(out json.RawMessage) bool {
	_, ok := ResultError(out)
	return ok
}

func runSafely(ctx context.Context, run func(context.Context) (json.RawMessage, error)) (out json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tool panicked", "panic", r)
			out, err = nil, clawErrors.Internal(fmt.Sprintf("tool panicked: %v", r))
		}
	}()
	return run(ctx)
}
