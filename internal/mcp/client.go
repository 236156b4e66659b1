// Package mcp talks to remote MCP servers over streamable HTTP.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/clawsync/clawsync/internal/config"
	clawErrors "github.com/clawsync/clawsync/internal/errors"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// RemoteTool is one entry of a tools/list response.
type RemoteTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ToolSource is the subset of Client the tool assembler and health checks use.
type ToolSource interface {
	ListTools(ctx context.Context, serverURL string) ([]RemoteTool, error)
	CallTool(ctx context.Context, serverURL, name string, args json.RawMessage) (json.RawMessage, error)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
	// Some servers answer with the payload at the top level.
	Tools []RemoteTool    `json:"tools,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client issues single JSON-RPC POSTs without a session handshake.
type Client struct {
	http             *http.Client
	maxResponseBytes int64
	nextID           atomic.Int64
}

func NewClient(cfg config.MCPConfig) *Client {
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = config.DefaultMCPMaxResponseBytes
	}
	// Deadlines come from the caller's context.
	httpClient := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return fmt.Errorf("redirect to %s refused", req.URL.Redacted())
		},
	}
	return &Client{http: httpClient, maxResponseBytes: maxBytes}
}

func (c *Client) ListTools(ctx context.Context, serverURL string) ([]RemoteTool, error) {
	resp, err := c.send(ctx, serverURL, string(mcpgo.MethodToolsList), map[string]any{})
	if err != nil {
		return nil, err
	}
	if len(resp.Tools) > 0 {
		return resp.Tools, nil
	}
	if len(resp.Result) == 0 {
		return []RemoteTool{}, nil
	}

	var result struct {
		Tools []RemoteTool `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, clawErrors.WrapWithCategory(err, "decode tools/list result", clawErrors.ErrUpstream)
	}
	if result.Tools == nil {
		return []RemoteTool{}, nil
	}
	return result.Tools, nil
}

func (c *Client) CallTool(ctx context.Context, serverURL, name string, args json.RawMessage) (json.RawMessage, error) {
	var arguments any = map[string]any{}
	if len(bytes.TrimSpace(args)) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return nil, clawErrors.WrapWithCategory(err, "decode tool arguments", clawErrors.ErrInvalidInput)
		}
	}

	resp, err := c.send(ctx, serverURL, string(mcpgo.MethodToolsCall), map[string]any{
		"name":      name,
		"arguments": arguments,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Result) > 0 {
		return resp.Result, nil
	}
	if len(resp.Data) > 0 {
		return resp.Data, nil
	}
	return json.RawMessage("null"), nil
}

func (c *Client) send(ctx context.Context, serverURL, method string, params any) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: c.nextID.Add(1)})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, bytes.NewReader(body))
	if err != nil {
		return nil, clawErrors.WrapWithCategory(err, "build "+method+" request", clawErrors.ErrConfiguration)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	slog.Debug("Sending MCP request", "method", method, "url", serverURL)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, clawErrors.WrapWithCategory(err, method+" request", clawErrors.ErrUpstream)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))
		return nil, clawErrors.Upstream(fmt.Sprintf("MCP server returned HTTP %d", httpResp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, clawErrors.WrapWithCategory(err, "read "+method+" response", clawErrors.ErrUpstream)
	}
	if int64(len(raw)) > c.maxResponseBytes {
		return nil, clawErrors.Upstream(fmt.Sprintf("MCP response exceeds %d bytes", c.maxResponseBytes))
	}

	payload, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var resp rpcResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, clawErrors.WrapWithCategory(err, "decode "+method+" response", clawErrors.ErrUpstream)
	}
	if resp.Error != nil {
		return nil, clawErrors.Upstream(fmt.Sprintf("MCP error %d: %s", resp.Error.Code, resp.Error.Message))
	}
	return &resp, nil
}

// extractJSON returns the body itself, or the first "data:" payload of an SSE stream.
func extractJSON(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(trimmed, []byte("event:")) && !bytes.HasPrefix(trimmed, []byte("data:")) {
		return trimmed, nil
	}
	for _, line := range bytes.Split(trimmed, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if data, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			return bytes.TrimSpace(data), nil
		}
	}
	return nil, clawErrors.Upstream("no data field in SSE response")
}
