// Package tool assembles the per-turn tool set from skills and MCP servers
// and wraps every entry in the security gate and the invocation log.
package tool

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/clawsync/clawsync/internal/model/contract"
)

type Source string

const (
	SourceSkill Source = "skill"
	SourceMCP   Source = "mcp"
)

// Handler runs one invocation. It never returns an error: failures come
// back as {"error": "..."}.
type Handler func(ctx context.Context, args json.RawMessage) json.RawMessage

// Tool is one callable entry exposed to the model.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Source      Source
	// Origin is the skill name or MCP server name the tool came from.
	Origin  string
	Handler Handler
}

func (t Tool) Definition() contract.ToolDef {
	return contract.ToolDef{Name: t.Name, Description: t.Description, Parameters: t.InputSchema}
}

// Set is the tool map of one turn, keyed by sanitized name.
type Set map[string]Tool

// Lookup finds a tool by exact key, then by its sanitized form.
func (s Set) Lookup(name string) (Tool, bool) {
	if t, ok := s[name]; ok {
		return t, true
	}
	t, ok := s[SanitizeName(name)]
	return t, ok
}

func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns model-facing definitions in name order.
func (s Set) Definitions() []contract.ToolDef {
	defs := make([]contract.ToolDef, 0, len(s))
	for _, name := range s.Names() {
		defs = append(defs, s[name].Definition())
	}
	return defs
}

// ErrorResult builds the {"error": msg} result handlers return on failure.
func ErrorResult(msg string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}

// ResultError reports the error message of a failure result.
func ResultError(result json.RawMessage) (string, bool) {
	var body struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(result, &body); err != nil || body.Error == nil {
		return "", false
	}
	return *body.Error, true
}
