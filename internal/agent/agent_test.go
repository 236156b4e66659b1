package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/clawsync/clawsync/internal/config"
	"github.com/clawsync/clawsync/internal/executor"
	"github.com/clawsync/clawsync/internal/logger"
	"github.com/clawsync/clawsync/internal/model"
	"github.com/clawsync/clawsync/internal/model/contract"
	"github.com/clawsync/clawsync/internal/ratelimit"
	"github.com/clawsync/clawsync/internal/tool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	mu        sync.Mutex
	responses []*contract.CompletionResponse
	err       error
	requests  []contract.CompletionRequest
}

func (p *scriptedProvider) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &contract.CompletionResponse{Content: "done"}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func (p *scriptedProvider) Name() string    { return "scripted" }
func (p *scriptedProvider) ModelID() string { return "scripted-1" }

type stubResolver struct {
	provider model.Provider
	err      error
}

func (r stubResolver) Resolve(ctx context.Context, mc *model.ModelConfig) (model.ResolvedModel, error) {
	if r.err != nil {
		return model.ResolvedModel{}, r.err
	}
	return model.ResolvedModel{Model: r.provider, ProviderID: "anthropic", ModelID: "scripted-1"}, nil
}

type staticTools struct {
	set   tool.Set
	calls int
}

func (s *staticTools) AssembleTools(ctx context.Context) tool.Set {
	s.calls++
	return s.set
}

func newAgent(t *testing.T, p *scriptedProvider, tools *staticTools, chat config.ChatConfig) *Agent {
	t.Helper()
	if tools == nil {
		tools = &staticTools{set: tool.Set{}}
	}
	return New(Options{Chat: chat}, stubResolver{provider: p}, tools, ratelimit.NewTokenBuckets())
}

func TestChat_PlainResponse(t *testing.T) {
	p := &scriptedProvider{responses: []*contract.CompletionResponse{{Content: "Hello!"}}}
	a := newAgent(t, p, nil, config.ChatConfig{SoulDocument: "You are Claw.", SystemPrompt: "Be brief."})

	resp := a.Chat(context.Background(), ChatRequest{SessionID: "s1", Message: "hi"})
	assert.Empty(t, resp.Error)
	assert.Equal(t, "Hello!", resp.Response)
	assert.NotEmpty(t, resp.ThreadID)
	assert.Empty(t, resp.ToolCalls)

	require.Len(t, p.requests, 1)
	assert.Equal(t, "You are Claw.\n\nBe brief.", p.requests[0].System)
	assert.Empty(t, p.requests[0].Tools)
}

func TestChat_ToolLoop(t *testing.T) {
	var sawEcho bool
	tools := &staticTools{set: tool.Set{
		"Get_Weather_": {
			Name:        "Get_Weather_",
			InputSchema: map[string]any{"type": "object"},
			Handler: func(ctx context.Context, args json.RawMessage) json.RawMessage {
				sawEcho = executor.CodeEchoAllowed(ctx)
				assert.Equal(t, "web", logger.GetChannel(ctx))
				return json.RawMessage(`{"forecast":"sunny"}`)
			},
		},
	}}
	p := &scriptedProvider{responses: []*contract.CompletionResponse{
		{ToolCalls: []*contract.ToolCall{{ID: "c1", Name: "Get Weather!", Input: `{"input":"Paris"}`}}},
		{Content: "It is sunny in Paris."},
	}}
	a := newAgent(t, p, tools, config.ChatConfig{})

	resp := a.Chat(context.Background(), ChatRequest{SessionID: "s1", Message: "Weather in Paris?"})
	require.Empty(t, resp.Error)
	assert.Equal(t, "It is sunny in Paris.", resp.Response)
	assert.True(t, sawEcho)
	assert.Equal(t, 1, tools.calls, "tools are assembled once per turn")

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "Get Weather!", resp.ToolCalls[0].Name)
	assert.Equal(t, "{\n  \"input\": \"Paris\"\n}", resp.ToolCalls[0].Args)
	assert.Equal(t, `{"forecast":"sunny"}`, resp.ToolCalls[0].Result)

	require.Len(t, p.requests, 2)
	last := p.requests[1].Messages
	require.Len(t, last, 3)
	assert.Equal(t, contract.RoleTool, last[2].Role)
	assert.Equal(t, "c1", last[2].ToolCallID)
}

func TestChat_StepsAreBounded(t *testing.T) {
	loopCall := &contract.CompletionResponse{Content: "still working", ToolCalls: []*contract.ToolCall{{ID: "c", Name: "noop", Input: `{}`}}}
	p := &scriptedProvider{responses: []*contract.CompletionResponse{loopCall, loopCall, loopCall, loopCall}}
	tools := &staticTools{set: tool.Set{"noop": {Name: "noop", Handler: func(ctx context.Context, args json.RawMessage) json.RawMessage {
		return json.RawMessage(`{"ok":true}`)
	}}}}
	a := newAgent(t, p, tools, config.ChatConfig{MaxSteps: 3})

	resp := a.Chat(context.Background(), ChatRequest{SessionID: "s1", Message: "loop"})
	assert.Len(t, p.requests, 3)
	assert.Len(t, resp.ToolCalls, 3)
	assert.Equal(t, "still working", resp.Response)
}

func TestChat_UnknownToolAndLongResult(t *testing.T) {
	tools := &staticTools{set: tool.Set{"big": {Name: "big", Handler: func(ctx context.Context, args json.RawMessage) json.RawMessage {
		return json.RawMessage(`"` + strings.Repeat("a", 3000) + `"`)
	}}}}
	p := &scriptedProvider{responses: []*contract.CompletionResponse{
		{ToolCalls: []*contract.ToolCall{{ID: "1", Name: "missing"}, {ID: "2", Name: "big", Input: ""}}},
		{Content: "ok"},
	}}
	a := newAgent(t, p, tools, config.ChatConfig{})

	resp := a.Chat(context.Background(), ChatRequest{SessionID: "s1", Message: "go"})
	require.Len(t, resp.ToolCalls, 2)
	assert.JSONEq(t, `{"error":"Tool not found: missing"}`, resp.ToolCalls[0].Result)
	assert.Equal(t, "{}", resp.ToolCalls[1].Args)
	assert.Len(t, resp.ToolCalls[1].Result, 1000)
}

func TestChat_Guards(t *testing.T) {
	p := &scriptedProvider{}

	t.Run("message too long", func(t *testing.T) {
		a := newAgent(t, p, nil, config.ChatConfig{})
		resp := a.Chat(context.Background(), ChatRequest{SessionID: "s", Message: strings.Repeat("x", 4001), ThreadID: "t1"})
		assert.Equal(t, "Message too long. Maximum 4000 characters.", resp.Error)
		assert.Equal(t, "t1", resp.ThreadID)
	})

	t.Run("exactly max length", func(t *testing.T) {
		a := newAgent(t, p, nil, config.ChatConfig{})
		resp := a.Chat(context.Background(), ChatRequest{SessionID: "s", Message: strings.Repeat("é", 4000)})
		assert.Empty(t, resp.Error)
	})

	t.Run("session limit", func(t *testing.T) {
		a := newAgent(t, p, nil, config.ChatConfig{SessionLimitPerMinute: 1})
		assert.Empty(t, a.Chat(context.Background(), ChatRequest{SessionID: "s", Message: "a"}).Error)
		assert.Equal(t, ErrSessionRateLimited, a.Chat(context.Background(), ChatRequest{SessionID: "s", Message: "b"}).Error)
		assert.Empty(t, a.Chat(context.Background(), ChatRequest{SessionID: "other", Message: "c"}).Error)
	})

	t.Run("global limit", func(t *testing.T) {
		a := newAgent(t, p, nil, config.ChatConfig{GlobalLimitPerMinute: 1})
		assert.Empty(t, a.Chat(context.Background(), ChatRequest{SessionID: "a", Message: "a"}).Error)
		assert.Equal(t, ErrGlobalRateLimited, a.Chat(context.Background(), ChatRequest{SessionID: "b", Message: "b"}).Error)
	})
}

func TestChat_Failures(t *testing.T) {
	a := New(Options{}, stubResolver{err: errors.New("no default")}, &staticTools{set: tool.Set{}}, nil)
	assert.Equal(t, ErrGenerateFailed, a.Chat(context.Background(), ChatRequest{SessionID: "s", Message: "hi"}).Error)

	p := &scriptedProvider{err: errors.New("503")}
	a = newAgent(t, p, nil, config.ChatConfig{})
	resp := a.Chat(context.Background(), ChatRequest{SessionID: "s", Message: "hi", ThreadID: "keep"})
	assert.Equal(t, ErrGenerateFailed, resp.Error)
	assert.Equal(t, "keep", resp.ThreadID)
	assert.Empty(t, resp.Response)
}

func TestChat_ThreadHistory(t *testing.T) {
	p := &scriptedProvider{responses: []*contract.CompletionResponse{{Content: "first"}, {Content: "second"}}}
	a := newAgent(t, p, nil, config.ChatConfig{})

	first := a.Chat(context.Background(), ChatRequest{SessionID: "s", Message: "one"})
	second := a.Chat(context.Background(), ChatRequest{SessionID: "s", Message: "two", ThreadID: first.ThreadID})
	assert.Equal(t, first.ThreadID, second.ThreadID)

	require.Len(t, p.requests, 2)
	assert.Len(t, p.requests[1].Messages, 3)
	assert.Len(t, a.History(first.ThreadID), 4)
}

func TestThreads_TrimKeepsUserFirst(t *testing.T) {
	th := newThreads()
	var history []contract.Message
	for i := 0; i < 60; i++ {
		history = append(history,
			contract.Message{Role: contract.RoleUser, Content: "q"},
			contract.Message{Role: contract.RoleAssistant, Content: "a"},
			contract.Message{Role: contract.RoleTool, Content: "r"},
		)
	}
	th.save("t", history)
	got := th.history("t")
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), maxThreadMessages)
	assert.Equal(t, contract.RoleUser, got[0].Role)
}
