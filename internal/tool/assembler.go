package tool

import (
	"context"
	"log/slog"
	"time"

	"github.com/clawsync/clawsync/internal/config"
	clawErrors "github.com/clawsync/clawsync/internal/errors"
	"github.com/clawsync/clawsync/internal/logger"
	"github.com/clawsync/clawsync/internal/mcp"
	"github.com/clawsync/clawsync/internal/skill"

	"golang.org/x/sync/errgroup"
)

// Assembler builds a fresh tool set on every call. Nothing is cached.
type Assembler struct {
	skills       skill.Registry
	servers      skill.MCPRegistry
	source       mcp.ToolSource
	pipeline     *Pipeline
	fetchTimeout time.Duration
	maxParallel  int
}

// NewAssembler wires the registries to the pipeline. servers and source
// may be nil, in which case only skill tools are produced.
func NewAssembler(skills skill.Registry, servers skill.MCPRegistry, source mcp.ToolSource, pipeline *Pipeline, cfg config.MCPConfig) (*Assembler, error) {
	if skills == nil || pipeline == nil {
		return nil, clawErrors.Configuration("assembler requires a skill registry and a pipeline")
	}
	fetchTimeout, err := config.DurationOrDefault(cfg.FetchTimeout, config.DefaultMCPFetchTimeout)
	if err != nil {
		return nil, clawErrors.WrapWithCategory(err, "mcp fetch timeout", clawErrors.ErrConfiguration)
	}
	return &Assembler{
		skills:       skills,
		servers:      servers,
		source:       source,
		pipeline:     pipeline,
		fetchTimeout: fetchTimeout,
		maxParallel:  config.IntOrDefault(cfg.MaxParallel, config.DefaultMCPMaxParallel),
	}, nil
}

// AssembleTools returns skill tools followed by MCP tools. On a name
// collision the later entry wins, so MCP tools shadow skills. Registry and
// server failures shrink the set instead of failing it.
func (a *Assembler) AssembleTools(ctx context.Context) Set {
	tools := a.SkillTools(ctx)
	for _, t := range a.mcpTools(ctx) {
		put(tools, t)
	}
	slog.Debug("Tools assembled", append([]any{"count", len(tools)}, logger.Attrs(ctx)...)...)
	return tools
}

// SkillTools returns gated tools for every active, approved skill.
func (a *Assembler) SkillTools(ctx context.Context) Set {
	tools := make(Set)
	skills, err := a.skills.GetActiveApproved(ctx)
	if err != nil {
		slog.Warn("Skill registry unavailable, assembling without skills",
			append([]any{"error", err}, logger.Attrs(ctx)...)...)
		return tools
	}
	for _, s := range skills {
		put(tools, a.pipeline.SkillTool(s))
	}
	return tools
}

func (a *Assembler) mcpTools(ctx context.Context) []Tool {
	if a.servers == nil || a.source == nil {
		return nil
	}
	servers, err := a.servers.GetEnabledApproved(ctx)
	if err != nil {
		slog.Warn("MCP registry unavailable, skipping MCP tools",
			append([]any{"error", err}, logger.Attrs(ctx)...)...)
		return nil
	}

	reachable := make([]skill.MCPServer, 0, len(servers))
	for _, srv := range servers {
		if srv.Reachable() {
			reachable = append(reachable, srv)
		}
	}

	// One slot per server keeps the merge in registry order.
	fetched := make([][]mcp.RemoteTool, len(reachable))
	var g errgroup.Group
	g.SetLimit(a.maxParallel)
	for i, srv := range reachable {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
			defer cancel()

			remote, err := a.source.ListTools(fetchCtx, srv.URL)
			if err != nil {
				slog.Warn("Skipping MCP server", "server", srv.Name, "url", srv.URL, "error", err)
				return nil
			}
			fetched[i] = remote
			return nil
		})
	}
	_ = g.Wait()

	var out []Tool
	for i, srv := range reachable {
		for _, rt := range fetched[i] {
			out = append(out, a.pipeline.MCPTool(srv, rt))
		}
	}
	return out
}

func put(tools Set, t Tool) {
	if prev, ok := tools[t.Name]; ok {
		slog.Debug("Tool name collision, later entry wins",
			"name", t.Name, "replaced", prev.Origin, "by", t.Origin)
	}
	tools[t.Name] = t
}
