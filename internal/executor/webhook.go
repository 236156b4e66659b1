package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	clawErrors "github.com/clawsync/clawsync/internal/errors"
	"github.com/clawsync/clawsync/internal/security"
	"github.com/clawsync/clawsync/internal/skill"
)

func (e *Executor) executeWebhook(ctx context.Context, c skill.WebhookConfig, input json.RawMessage) (json.RawMessage, error) {
	host, err := c.Host()
	if err != nil {
		return nil, err
	}
	if !security.DomainAllowed(e.allowlist, host) {
		return nil, clawErrors.Denied(fmt.Sprintf("Domain not in allowlist: %s", host))
	}

	body := input
	if len(bytes.TrimSpace(body)) == 0 {
		body = json.RawMessage("null")
	}

	req, err := http.NewRequestWithContext(ctx, c.HTTPMethod(), c.Target(), bytes.NewReader(body))
	if err != nil {
		return nil, clawErrors.WrapWithCategory(err, "build webhook request", clawErrors.ErrConfiguration)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, clawErrors.WrapWithCategory(err, "webhook request", clawErrors.ErrUpstream)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, clawErrors.Upstream(fmt.Sprintf("Webhook failed: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxResponseBytes+1))
	if err != nil {
		return nil, clawErrors.WrapWithCategory(err, "read webhook response", clawErrors.ErrUpstream)
	}
	if int64(len(data)) > e.maxResponseBytes {
		slog.Warn("Webhook response truncated", "host", host, "limit", e.maxResponseBytes)
		data = data[:e.maxResponseBytes]
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return json.RawMessage(trimmed), nil
	}
	return json.Marshal(map[string]string{"response": string(data)})
}
