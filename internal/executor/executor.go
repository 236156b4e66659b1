// Package executor runs a skill once the security gate has let it through.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clawsync/clawsync/internal/config"
	clawErrors "github.com/clawsync/clawsync/internal/errors"
	"github.com/clawsync/clawsync/internal/security"
	"github.com/clawsync/clawsync/internal/skill"
)

// SkillExecutor is what the tool pipeline calls after a passed check.
type SkillExecutor interface {
	Execute(ctx context.Context, s skill.Skill, input json.RawMessage) (json.RawMessage, error)
}

type contextKey string

const codeEchoKey contextKey = "allow_code_echo"

// WithCodeEcho marks ctx as coming from the agent loop, which is the only
// place code skills are allowed to run.
func WithCodeEcho(ctx context.Context) context.Context {
	return context.WithValue(ctx, codeEchoKey, true)
}

func CodeEchoAllowed(ctx context.Context) bool {
	v, _ := ctx.Value(codeEchoKey).(bool)
	return v
}

// Executor dispatches on the skill type.
type Executor struct {
	templates        TemplateEngine
	client           *http.Client
	allowlist        []string
	maxResponseBytes int64
}

// New builds an Executor. allowlist is the agent-wide domain allowlist,
// re-checked before every webhook call.
func New(cfg config.ExecutorConfig, templates TemplateEngine, allowlist []string) (*Executor, error) {
	timeout, err := config.DurationOrDefault(cfg.WebhookTimeout, config.DefaultExecutorWebhookTimeout)
	if err != nil {
		return nil, clawErrors.WrapWithCategory(err, "executor webhook timeout", clawErrors.ErrConfiguration)
	}

	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = config.DefaultExecutorMaxResponseBytes
	}

	return &Executor{
		templates:        templates,
		client:           newWebhookClient(timeout),
		allowlist:        security.NormalizeDomains(allowlist),
		maxResponseBytes: maxBytes,
	}, nil
}

func (e *Executor) Execute(ctx context.Context, s skill.Skill, input json.RawMessage) (json.RawMessage, error) {
	cfg, err := skill.DecodeConfig(s)
	if err != nil {
		return nil, err
	}

	switch c := cfg.(type) {
	case skill.TemplateConfig:
		return e.executeTemplate(ctx, s, c, input)
	case skill.WebhookConfig:
		return e.executeWebhook(ctx, c, input)
	case skill.CodeConfig:
		return e.executeCode(ctx, s, input)
	default:
		return nil, clawErrors.Configuration(fmt.Sprintf("Unknown skill type: %s", s.Type))
	}
}

func (e *Executor) executeTemplate(ctx context.Context, s skill.Skill, c skill.TemplateConfig, input json.RawMessage) (json.RawMessage, error) {
	if e.templates == nil {
		return nil, clawErrors.Configuration("no template engine configured")
	}
	rendered, err := e.templates.Execute(ctx, s.TemplateID, c, input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"result": rendered})
}

func (e *Executor) executeCode(ctx context.Context, s skill.Skill, input json.RawMessage) (json.RawMessage, error) {
	if !CodeEchoAllowed(ctx) {
		return nil, clawErrors.Denied("code skills must be executed through the agent")
	}
	result := fmt.Sprintf("Code skill %q executed with query: %s", s.Name, queryOf(input))
	return json.Marshal(map[string]string{"result": result})
}

// queryOf accepts {"query": "..."}, {"input": "..."} or a bare JSON string.
func queryOf(input json.RawMessage) string {
	var obj map[string]any
	if err := json.Unmarshal(input, &obj); err == nil {
		for _, key := range []string{"query", "input"} {
			if v, ok := obj[key].(string); ok {
				return v
			}
		}
		return string(input)
	}
	var str string
	if err := json.Unmarshal(input, &str); err == nil {
		return str
	}
	return string(input)
}

func newWebhookClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return fmt.Errorf("redirect to %s refused", req.URL.Redacted())
		},
	}
}
