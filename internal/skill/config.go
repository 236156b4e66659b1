package skill

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	clawErrors "github.com/clawsync/clawsync/internal/errors"
)

// Config is the typed form of Skill.Config.
type Config interface {
	SkillType() Type
	// Schema is the JSON schema advertised to the model for this skill's input.
	Schema() map[string]any
}

type TemplateConfig struct {
	Variables   map[string]any `json:"variables,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

func (TemplateConfig) SkillType() Type { return TypeTemplate }

func (c TemplateConfig) Schema() map[string]any {
	if len(c.InputSchema) > 0 {
		return c.InputSchema
	}
	return stringInputSchema("input", "Input for the skill")
}

type WebhookConfig struct {
	URL            string            `json:"url,omitempty"`
	WebhookURL     string            `json:"webhookUrl,omitempty"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	AllowedDomains []string          `json:"allowedDomains,omitempty"`
	InputSchema    map[string]any    `json:"inputSchema,omitempty"`
}

func (WebhookConfig) SkillType() Type { return TypeWebhook }

func (c WebhookConfig) Schema() map[string]any {
	if len(c.InputSchema) > 0 {
		return c.InputSchema
	}
	return stringInputSchema("input", "Input for the skill")
}

// Target returns the configured URL. "url" wins over the legacy "webhookUrl" key.
func (c WebhookConfig) Target() string {
	if u := strings.TrimSpace(c.URL); u != "" {
		return u
	}
	return strings.TrimSpace(c.WebhookURL)
}

// HTTPMethod returns the upper-cased method, POST when unset.
func (c WebhookConfig) HTTPMethod() string {
	m := strings.ToUpper(strings.TrimSpace(c.Method))
	if m == "" {
		return "POST"
	}
	return m
}

// Host returns the lower-cased hostname of the target URL.
func (c WebhookConfig) Host() (string, error) {
	target := c.Target()
	if target == "" {
		return "", clawErrors.Configuration("webhook skill has no url")
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", clawErrors.Configuration(fmt.Sprintf("invalid webhook url %q", target))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", clawErrors.Configuration(fmt.Sprintf("unsupported webhook scheme %q", u.Scheme))
	}
	if u.Hostname() == "" {
		return "", clawErrors.Configuration(fmt.Sprintf("webhook url %q has no host", target))
	}
	return strings.ToLower(u.Hostname()), nil
}

type CodeConfig struct {
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

func (CodeConfig) SkillType() Type { return TypeCode }

func (c CodeConfig) Schema() map[string]any {
	if len(c.InputSchema) > 0 {
		return c.InputSchema
	}
	return stringInputSchema("query", "Query for the code skill")
}

// DecodeConfig parses s.Config into the variant matching s.Type. Malformed
// JSON, an unknown type, a template skill without templateId and a webhook
// skill without a usable URL are configuration errors.
func DecodeConfig(s Skill) (Config, error) {
	raw := []byte(strings.TrimSpace(string(s.Config)))
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}

	switch s.Type {
	case TypeTemplate:
		var c TemplateConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, clawErrors.WrapWithCategory(err, fmt.Sprintf("skill %q config", s.Name), clawErrors.ErrConfiguration)
		}
		if strings.TrimSpace(s.TemplateID) == "" {
			return nil, clawErrors.Configuration(fmt.Sprintf("template skill %q has no templateId", s.Name))
		}
		return c, nil
	case TypeWebhook:
		var c WebhookConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, clawErrors.WrapWithCategory(err, fmt.Sprintf("skill %q config", s.Name), clawErrors.ErrConfiguration)
		}
		if _, err := c.Host(); err != nil {
			return nil, err
		}
		return c, nil
	case TypeCode:
		var c CodeConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, clawErrors.WrapWithCategory(err, fmt.Sprintf("skill %q config", s.Name), clawErrors.ErrConfiguration)
		}
		return c, nil
	default:
		return nil, clawErrors.Configuration(fmt.Sprintf("skill %q has unknown type %q", s.Name, s.Type))
	}
}

// Validate checks the fields an administrator must provide when registering a skill.
func Validate(s Skill) error {
	if strings.TrimSpace(s.Name) == "" {
		return clawErrors.InvalidInput("skill name is required")
	}
	if !s.Type.Valid() {
		return clawErrors.InvalidInput(fmt.Sprintf("skill %q has unknown type %q", s.Name, s.Type))
	}
	if len(s.Config) > 0 && !json.Valid(s.Config) {
		return clawErrors.InvalidInput(fmt.Sprintf("skill %q config is not valid JSON", s.Name))
	}
	return nil
}

func stringInputSchema(field, description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			field: map[string]any{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{field},
	}
}
