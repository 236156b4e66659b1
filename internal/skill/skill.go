// Package skill holds the registry-facing data model: skills, their typed
// configuration variants, MCP server entries and templates.
package skill

import (
	"encoding/json"
	"strings"
	"time"
)

type Type string

const (
	TypeTemplate Type = "template"
	TypeWebhook  Type = "webhook"
	TypeCode     Type = "code"
)

func (t Type) Valid() bool {
	switch t {
	case TypeTemplate, TypeWebhook, TypeCode:
		return true
	}
	return false
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
	StatusRejected Status = "rejected"
)

// Skill is a registry entry. Config is the raw per-type configuration; use
// DecodeConfig to obtain the typed variant.
type Skill struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        Type            `json:"skillType"`
	Config      json.RawMessage `json:"config,omitempty"`
	TemplateID  string          `json:"templateId,omitempty"`
	Status      Status          `json:"status"`
	Approved    bool            `json:"approved"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Eligible reports whether the skill may be exposed as a tool.
func (s Skill) Eligible() bool {
	return s.Status == StatusActive && s.Approved
}

// MCPServer is an external MCP endpoint registered by an operator.
type MCPServer struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	URL                string    `json:"url,omitempty"`
	Enabled            bool      `json:"enabled"`
	Approved           bool      `json:"approved"`
	RateLimitPerMinute int       `json:"rateLimitPerMinute"`
	HealthStatus       string    `json:"healthStatus,omitempty"`
	ToolCount          int       `json:"toolCount"`
	LastHealthCheck    time.Time `json:"lastHealthCheck,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Reachable reports whether tools may be fetched from or called on the server.
func (m MCPServer) Reachable() bool {
	return m.Enabled && m.Approved && strings.TrimSpace(m.URL) != ""
}

const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// Template is a text/template body that template skills render.
type Template struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"createdAt"`
}
