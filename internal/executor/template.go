package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	clawErrors "github.com/clawsync/clawsync/internal/errors"
	"github.com/clawsync/clawsync/internal/skill"
)

// TemplateEngine renders a template skill.
type TemplateEngine interface {
	Execute(ctx context.Context, templateID string, cfg skill.TemplateConfig, input json.RawMessage) (string, error)
}

// TextTemplateEngine renders text/template bodies loaded from a template store.
// The template sees {{.Input}} (decoded input) and {{.Config}} (the skill's variables).
type TextTemplateEngine struct {
	store skill.TemplateStore
}

func NewTextTemplateEngine(store skill.TemplateStore) *TextTemplateEngine {
	return &TextTemplateEngine{store: store}
}

type templateData struct {
	Input  any
	Config map[string]any
}

func (e *TextTemplateEngine) Execute(ctx context.Context, templateID string, cfg skill.TemplateConfig, input json.RawMessage) (string, error) {
	t, err := e.store.GetTemplate(ctx, templateID)
	if err != nil {
		if clawErrors.IsCategory(err, clawErrors.ErrNotFound) {
			return "", clawErrors.NotFound(fmt.Sprintf("Template not found: %s", templateID))
		}
		return "", err
	}

	tmpl, err := template.New(t.ID).Option("missingkey=zero").Parse(t.Body)
	if err != nil {
		return "", clawErrors.WrapWithCategory(err, "parse template "+t.ID, clawErrors.ErrConfiguration)
	}

	data := templateData{Config: cfg.Variables}
	if len(bytes.TrimSpace(input)) > 0 {
		if err := json.Unmarshal(input, &data.Input); err != nil {
			data.Input = string(input)
		}
	}
	if data.Config == nil {
		data.Config = map[string]any{}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", clawErrors.WrapWithCategory(err, "render template "+t.ID, clawErrors.ErrInvalidInput)
	}
	return buf.String(), nil
}
