package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/clawsync/clawsync/internal/config"
	"github.com/clawsync/clawsync/internal/logger"
	"github.com/clawsync/clawsync/internal/tool"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// MCPHandler serves the skill tools over streamable HTTP. The tool list is
// refreshed from the registry before every request.
type MCPHandler struct {
	tools   tool.ToolAssembler
	server  *mcpserver.MCPServer
	handler http.Handler
	mu      sync.Mutex
}

func NewMCPHandler(tools tool.ToolAssembler, cfg config.MCPConfig) *MCPHandler {
	name := cfg.ServerName
	if name == "" {
		name = config.DefaultMCPServerName
	}
	version := cfg.ServerVersion
	if version == "" {
		version = config.DefaultMCPServerVersion
	}

	s := mcpserver.NewMCPServer(name, version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)
	return &MCPHandler{
		tools:   tools,
		server:  s,
		handler: mcpserver.NewStreamableHTTPServer(s, mcpserver.WithStateLess(true)),
	}
}

func (h *MCPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.refresh(r.Context())
	h.handler.ServeHTTP(w, r)
}

// HandleMessage processes one raw JSON-RPC message against a fresh tool list.
func (h *MCPHandler) HandleMessage(ctx context.Context, raw json.RawMessage) mcpgo.JSONRPCMessage {
	h.refresh(ctx)
	return h.server.HandleMessage(ctx, raw)
}

func (h *MCPHandler) refresh(ctx context.Context) {
	set := h.tools.AssembleTools(ctx)
	serverTools := make([]mcpserver.ServerTool, 0, len(set))
	for _, name := range set.Names() {
		t := set[name]
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			slog.Warn("Skipping tool with unencodable schema", "tool", t.Name, "error", err)
			continue
		}
		serverTools = append(serverTools, mcpserver.ServerTool{
			Tool:    mcpgo.NewToolWithRawSchema(t.Name, t.Description, schema),
			Handler: callHandler(t),
		})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.server.SetTools(serverTools...)
}

func callHandler(t tool.Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		ctx = logger.WithChannel(ctx, tool.ChannelMCPAPI)

		args := json.RawMessage(`{}`)
		if in := req.GetArguments(); len(in) > 0 {
			b, err := json.Marshal(in)
			if err != nil {
				return mcpgo.NewToolResultError("invalid arguments"), nil
			}
			args = b
		}

		result := t.Handler(ctx, args)
		if msg, isErr := tool.ResultError(result); isErr {
			return mcpgo.NewToolResultError(msg), nil
		}
		return mcpgo.NewToolResultText(string(result)), nil
	}
}
