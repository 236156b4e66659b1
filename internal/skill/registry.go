package skill

import (
	"context"
	"sort"
	"strings"
	"sync"

	clawErrors "github.com/clawsync/clawsync/internal/errors"
)

// Registry exposes the skills eligible for tool assembly.
type Registry interface {
	GetActiveApproved(ctx context.Context) ([]Skill, error)
}

// Lookup resolves a skill by its registry name, regardless of status.
type Lookup interface {
	GetSkillByName(ctx context.Context, name string) (*Skill, error)
}

// ServerLookup resolves an MCP server by name, regardless of state.
type ServerLookup interface {
	GetServerByName(ctx context.Context, name string) (*MCPServer, error)
}

// MCPRegistry exposes the MCP servers tools may be fetched from.
type MCPRegistry interface {
	GetEnabledApproved(ctx context.Context) ([]MCPServer, error)
}

// HealthRecorder persists the outcome of an MCP server health probe.
type HealthRecorder interface {
	RecordHealth(ctx context.Context, serverID, status string, toolCount int) error
}

// TemplateStore resolves template definitions by id.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (*Template, error)
}

// MemoryRegistry is an in-process registry satisfying every registry
// interface without a database.
type MemoryRegistry struct {
	mu        sync.RWMutex
	skills    []Skill
	servers   []MCPServer
	templates map[string]Template
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{templates: make(map[string]Template)}
}

// PutSkill inserts or replaces a skill by name, keeping insertion order.
func (r *MemoryRegistry) PutSkill(s Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.skills {
		if r.skills[i].Name == s.Name {
			r.skills[i] = s
			return
		}
	}
	r.skills = append(r.skills, s)
}

func (r *MemoryRegistry) PutServer(m MCPServer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.servers {
		if r.servers[i].Name == m.Name {
			r.servers[i] = m
			return
		}
	}
	r.servers = append(r.servers, m)
}

func (r *MemoryRegistry) PutTemplate(t Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = t
}

func (r *MemoryRegistry) GetActiveApproved(ctx context.Context) ([]Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Skill, 0, len(r.skills))
	for _, s := range r.skills {
		if s.Eligible() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *MemoryRegistry) ListSkills(ctx context.Context) ([]Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]Skill(nil), r.skills...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRegistry) GetSkillByName(ctx context.Context, name string) (*Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.skills {
		if s.Name == name {
			cp := s
			return &cp, nil
		}
	}
	return nil, clawErrors.NotFound("skill " + name)
}

func (r *MemoryRegistry) GetServerByName(ctx context.Context, name string) (*MCPServer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.servers {
		if m.Name == name {
			cp := m
			return &cp, nil
		}
	}
	return nil, clawErrors.NotFound("mcp server " + name)
}

func (r *MemoryRegistry) GetEnabledApproved(ctx context.Context) ([]MCPServer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MCPServer, 0, len(r.servers))
	for _, m := range r.servers {
		if m.Enabled && m.Approved {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListServers returns every registered server in insertion order.
func (r *MemoryRegistry) ListServers(ctx context.Context) ([]MCPServer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]MCPServer(nil), r.servers...), nil
}

func (r *MemoryRegistry) RecordHealth(ctx context.Context, serverID, status string, toolCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.servers {
		if r.servers[i].ID == serverID || (r.servers[i].ID == "" && r.servers[i].Name == serverID) {
			r.servers[i].HealthStatus = status
			r.servers[i].ToolCount = toolCount
			return nil
		}
	}
	return clawErrors.NotFound("mcp server " + serverID)
}

func (r *MemoryRegistry) Server(name string) (MCPServer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.servers {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return MCPServer{}, false
}

func (r *MemoryRegistry) GetTemplate(ctx context.Context, id string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, clawErrors.NotFound("template " + id)
	}
	return &t, nil
}
