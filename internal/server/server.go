// Package server exposes the agent, the skill registry and the gated tools
// over HTTP, including an MCP endpoint at /mcp.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/clawsync/clawsync/internal/agent"
	"github.com/clawsync/clawsync/internal/config"
	"github.com/clawsync/clawsync/internal/logger"
	"github.com/clawsync/clawsync/internal/skill"
	"github.com/clawsync/clawsync/internal/tool"
)

const (
	maxBodyBytes = 1 << 20
	channelAPI   = "api"
)

type Chatter interface {
	Chat(ctx context.Context, req agent.ChatRequest) agent.ChatResponse
}

// ComponentStatus is reported per daemon component on /api/health.
type ComponentStatus struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type Options struct {
	Version string
	MCP     config.MCPConfig
	// Components reports daemon component health. Optional.
	Components func(ctx context.Context) map[string]ComponentStatus
}

type Server struct {
	chat       Chatter
	skills     skill.Registry
	skillTools tool.ToolAssembler
	invoker    *tool.Invoker
	mcp        *MCPHandler
	version    string
	components func(ctx context.Context) map[string]ComponentStatus
	mux        *http.ServeMux
}

// New builds the HTTP surface. skillTools yields the gated skill tools
// that /api/v1/mcp/* and /mcp expose.
func New(chat Chatter, skills skill.Registry, skillTools tool.ToolAssembler, opts Options) *Server {
	version := opts.Version
	if version == "" {
		version = config.DefaultMCPServerVersion
	}
	s := &Server{
		chat:       chat,
		skills:     skills,
		skillTools: skillTools,
		invoker:    tool.NewInvoker(skillTools),
		mcp:        NewMCPHandler(skillTools, opts.MCP),
		version:    version,
		components: opts.Components,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/v1/agent/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/v1/mcp/tools", s.handleListTools)
	s.mux.HandleFunc("POST /api/v1/mcp/tools/call", s.handleCallTool)
	s.mux.HandleFunc("GET /api/v1/mcp/resources", s.handleResources)
	s.mux.HandleFunc("GET /api/v1/data/skills", s.handleSkills)
	s.mux.Handle("/mcp", s.mcp)
}

func (s *Server) Handler() http.Handler {
	return recoverer(requestLogger(s.mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"version":   s.version,
		"timestamp": time.Now().UnixMilli(),
	}
	if s.components != nil {
		resp["components"] = s.components(r.Context())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message   *string `json:"message"`
		ThreadID  string  `json:"threadId"`
		SessionID string  `json:"sessionId"`
	}
	if err := decodeBody(w, r, &body); err != nil || body.Message == nil || *body.Message == "" {
		writeError(w, http.StatusBadRequest, "Missing or invalid message")
		return
	}

	sessionID := body.SessionID
	if sessionID == "" {
		sessionID = "api_" + clientIP(r)
	}

	resp := s.chat.Chat(r.Context(), agent.ChatRequest{
		ThreadID:  body.ThreadID,
		SessionID: sessionID,
		Message:   *body.Message,
		Channel:   channelAPI,
	})
	if resp.Error != "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": resp.Error, "threadId": resp.ThreadID})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type toolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools := s.skillTools.AssembleTools(r.Context())
	out := make([]toolInfo, 0, len(tools))
	for _, name := range tools.Names() {
		t := tools[name]
		out = append(out, toolInfo{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := decodeBody(w, r, &body); err != nil || strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusBadRequest, "Missing tool name")
		return
	}

	ctx := logger.WithChannel(r.Context(), tool.ChannelMCPAPI)
	result := s.invoker.Call(ctx, body.Name, body.Arguments)
	if msg, isErr := tool.ResultError(result); isErr {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]json.RawMessage{"result": result})
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"resources": []any{}})
}

type skillInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	SkillType   skill.Type `json:"skillType"`
}

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := s.skills.GetActiveApproved(r.Context())
	if err != nil {
		slog.Error("List skills failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	out := make([]skillInfo, 0, len(skills))
	for _, sk := range skills {
		out = append(out, skillInfo{Name: sk.Name, Description: sk.Description, SkillType: sk.Type})
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": out})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
