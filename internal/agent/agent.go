// Package agent runs one chat turn: rate limits, model resolution, tool
// assembly and the bounded model/tool loop.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/clawsync/clawsync/internal/concurrency"
	"github.com/clawsync/clawsync/internal/config"
	"github.com/clawsync/clawsync/internal/executor"
	"github.com/clawsync/clawsync/internal/logger"
	"github.com/clawsync/clawsync/internal/model"
	"github.com/clawsync/clawsync/internal/model/contract"
	"github.com/clawsync/clawsync/internal/ratelimit"
	"github.com/clawsync/clawsync/internal/tool"

	"github.com/oklog/ulid/v2"
)

const (
	ErrSessionRateLimited = "Rate limit exceeded. Please wait before sending another message."
	ErrGlobalRateLimited  = "The agent is currently busy. Please try again in a moment."
	ErrGenerateFailed     = "Failed to generate response. Please try again."

	globalLimitKey = "chat:global"
	defaultChannel = "web"
)

type ChatRequest struct {
	ThreadID  string `json:"threadId,omitempty"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Channel   string `json:"channel,omitempty"`
}

// ToolCallSummary describes one tool call made during a turn.
type ToolCallSummary struct {
	Name   string `json:"name"`
	Args   string `json:"args"`
	Result string `json:"result"`
}

// ChatResponse carries either Response or Error, never both.
type ChatResponse struct {
	Response  string            `json:"response,omitempty"`
	Error     string            `json:"error,omitempty"`
	ThreadID  string            `json:"threadId,omitempty"`
	ToolCalls []ToolCallSummary `json:"toolCalls,omitempty"`
}

type ModelResolver interface {
	Resolve(ctx context.Context, mc *model.ModelConfig) (model.ResolvedModel, error)
}

type Options struct {
	Chat           config.ChatConfig
	Model          *model.ModelConfig
	MaxTokens      int
	RequestTimeout time.Duration
}

type Agent struct {
	resolver       ModelResolver
	modelCfg       *model.ModelConfig
	tools          tool.ToolAssembler
	limiter        ratelimit.Limiter
	threads        *threads
	threadLocks    *concurrency.KeyedLocks
	system         string
	sessionLimit   int
	globalLimit    int
	maxLength      int
	maxSteps       int
	resultMaxChars int
	maxTokens      int
	requestTimeout time.Duration
}

func New(opts Options, resolver ModelResolver, tools tool.ToolAssembler, limiter ratelimit.Limiter) *Agent {
	if limiter == nil {
		limiter = ratelimit.NewTokenBuckets()
	}
	return &Agent{
		resolver:       resolver,
		modelCfg:       opts.Model,
		tools:          tools,
		limiter:        limiter,
		threads:        newThreads(),
		threadLocks:    concurrency.NewKeyedLocks(),
		system:         systemPrompt(opts.Chat),
		sessionLimit:   opts.Chat.SessionLimitPerMinute,
		globalLimit:    opts.Chat.GlobalLimitPerMinute,
		maxLength:      config.IntOrDefault(opts.Chat.MaxMessageLength, config.DefaultChatMaxMessageLength),
		maxSteps:       config.IntOrDefault(opts.Chat.MaxSteps, config.DefaultChatMaxSteps),
		resultMaxChars: config.IntOrDefault(opts.Chat.ToolResultMaxChars, config.DefaultChatToolResultMaxChars),
		maxTokens:      config.IntOrDefault(opts.MaxTokens, config.DefaultModelMaxTokens),
		requestTimeout: opts.RequestTimeout,
	}
}

func systemPrompt(cfg config.ChatConfig) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{cfg.SoulDocument, cfg.SystemPrompt} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Chat runs one turn. Failures are reported in ChatResponse.Error.
func (a *Agent) Chat(ctx context.Context, req ChatRequest) ChatResponse {
	channel := req.Channel
	if channel == "" {
		channel = defaultChannel
	}
	ctx = logger.WithTraceID(ctx, ulid.Make().String())
	ctx = logger.WithSessionID(ctx, req.SessionID)
	ctx = logger.WithChannel(ctx, channel)

	if ok, err := a.limiter.CheckAndIncrement(ctx, "chat:session:"+req.SessionID, a.sessionLimit, time.Minute); err != nil || !ok {
		return ChatResponse{Error: ErrSessionRateLimited, ThreadID: req.ThreadID}
	}
	if ok, err := a.limiter.CheckAndIncrement(ctx, globalLimitKey, a.globalLimit, time.Minute); err != nil || !ok {
		return ChatResponse{Error: ErrGlobalRateLimited, ThreadID: req.ThreadID}
	}
	if utf8.RuneCountInString(req.Message) > a.maxLength {
		return ChatResponse{Error: fmt.Sprintf("Message too long. Maximum %d characters.", a.maxLength), ThreadID: req.ThreadID}
	}

	resolved, err := a.resolver.Resolve(ctx, a.modelCfg)
	if err != nil {
		slog.Error("Model resolution failed", append([]any{"error", err}, logger.Attrs(ctx)...)...)
		return ChatResponse{Error: ErrGenerateFailed, ThreadID: req.ThreadID}
	}
	if resolved.IsFallback {
		slog.Warn("Using fallback model",
			append([]any{"provider", resolved.ProviderID, "model", resolved.ModelID}, logger.Attrs(ctx)...)...)
	}

	if req.ThreadID != "" {
		unlock := a.threadLocks.Lock(req.ThreadID)
		defer unlock()
	}
	threadID, history := a.threads.open(req.ThreadID)
	history = append(history, contract.Message{Role: contract.RoleUser, Content: req.Message})

	tools := a.tools.AssembleTools(ctx)
	text, history, calls, err := a.loop(executor.WithCodeEcho(ctx), resolved, tools, history)
	if err != nil {
		slog.Error("Chat turn failed", append([]any{"error", err}, logger.Attrs(ctx)...)...)
		return ChatResponse{Error: ErrGenerateFailed, ThreadID: req.ThreadID}
	}

	a.threads.save(threadID, history)
	slog.Info("Chat turn completed",
		append([]any{"thread", threadID, "tool_calls", len(calls)}, logger.Attrs(ctx)...)...)
	return ChatResponse{Response: text, ThreadID: threadID, ToolCalls: calls}
}

// History returns the stored messages of a thread.
func (a *Agent) History(threadID string) []contract.Message {
	return a.threads.history(threadID)
}

func (a *Agent) loop(ctx context.Context, resolved model.ResolvedModel, tools tool.Set, history []contract.Message) (string, []contract.Message, []ToolCallSummary, error) {
	defs := tools.Definitions()
	steps := a.maxSteps
	if len(defs) == 0 {
		steps = 1
	}

	var (
		calls []ToolCallSummary
		text  string
	)
	for step := 0; step < steps; step++ {
		resp, err := a.generate(ctx, resolved, contract.CompletionRequest{
			Model:     resolved.ModelID,
			System:    a.system,
			Messages:  history,
			Tools:     defs,
			MaxTokens: a.maxTokens,
		})
		if err != nil {
			return "", history, calls, err
		}
		text = resp.Content
		history = append(history, contract.Message{
			Role:      contract.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		if len(resp.ToolCalls) == 0 {
			break
		}

		for _, call := range resp.ToolCalls {
			result := a.runTool(ctx, tools, call)
			calls = append(calls, ToolCallSummary{
				Name:   call.Name,
				Args:   prettyArgs(call.Input),
				Result: truncate(string(result), a.resultMaxChars),
			})
			history = append(history, contract.Message{
				Role:       contract.RoleTool,
				Content:    string(result),
				ToolCallID: call.ID,
			})
		}
	}
	return text, history, calls, nil
}

func (a *Agent) generate(ctx context.Context, resolved model.ResolvedModel, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	if a.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.requestTimeout)
		defer cancel()
	}
	return resolved.Model.Generate(ctx, req)
}

func (a *Agent) runTool(ctx context.Context, tools tool.Set, call *contract.ToolCall) json.RawMessage {
	t, ok := tools.Lookup(call.Name)
	if !ok {
		return tool.ErrorResult("Tool not found: " + call.Name)
	}
	args := json.RawMessage(strings.TrimSpace(call.Input))
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if !json.Valid(args) {
		return tool.ErrorResult("Tool arguments are not valid JSON")
	}
	return t.Handler(ctx, args)
}

func prettyArgs(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		input = "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(input), "", "  "); err != nil {
		return input
	}
	return buf.String()
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
