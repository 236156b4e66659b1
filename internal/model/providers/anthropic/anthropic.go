package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clawsync/clawsync/internal/model/contract"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 4096

type Provider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func New(apiKey, baseURL, model string, maxTokens int) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Provider{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

func (p *Provider) Name() string    { return "anthropic" }
func (p *Provider) ModelID() string { return p.model }

func (p *Provider) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, convertMessage(m))
	}

	tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, convertTool(t))
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  messages,
		Tools:     tools,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	resp := &contract.CompletionResponse{}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content += b.Text
		case anthropic.ToolUseBlock:
			inputJSON, _ := json.Marshal(b.Input)
			resp.ToolCalls = append(resp.ToolCalls, &contract.ToolCall{
				ID:    b.ID,
				Name:  b.Name,
				Input: string(inputJSON),
			})
		}
	}
	return resp, nil
}

func convertMessage(m contract.Message) anthropic.MessageParam {
	switch m.Role {
	case contract.RoleAssistant:
		if len(m.ToolCalls) == 0 {
			return anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content))
		}
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		for _, tc := range m.ToolCalls {
			var input map[string]any
			_ = json.Unmarshal([]byte(tc.Input), &input)
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		return anthropic.NewAssistantMessage(blocks...)
	case contract.RoleTool:
		return anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
	default:
		return anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content))
	}
}

func convertTool(t contract.ToolDef) anthropic.ToolUnionParam {
	var schema anthropic.ToolInputSchemaParam
	if t.Parameters != nil {
		b, _ := json.Marshal(t.Parameters)
		_ = json.Unmarshal(b, &schema)
	}
	if schema.Properties == nil {
		schema.Properties = map[string]any{}
	}
	return anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
		Name:        t.Name,
		Description: anthropic.String(t.Description),
		InputSchema: schema,
	}}
}
