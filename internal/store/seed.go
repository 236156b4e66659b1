package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/clawsync/clawsync/internal/pathutil"
	"github.com/clawsync/clawsync/internal/skill"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// Document is the on-disk registry format used by seed import and export.
type Document struct {
	Templates  []TemplateDoc  `yaml:"templates,omitempty" json:"templates,omitempty"`
	Skills     []SkillDoc     `yaml:"skills,omitempty" json:"skills,omitempty"`
	MCPServers []MCPServerDoc `yaml:"mcp_servers,omitempty" json:"mcp_servers,omitempty"`
}

type TemplateDoc struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Body        string `yaml:"body" json:"body"`
}

type SkillDoc struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Type        string         `yaml:"skill_type" json:"skill_type"`
	Config      map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
	TemplateID  string         `yaml:"template_id,omitempty" json:"template_id,omitempty"`
	Status      string         `yaml:"status,omitempty" json:"status,omitempty"`
	Approved    bool           `yaml:"approved" json:"approved"`
}

type MCPServerDoc struct {
	Name               string `yaml:"name" json:"name"`
	URL                string `yaml:"url,omitempty" json:"url,omitempty"`
	Enabled            bool   `yaml:"enabled" json:"enabled"`
	Approved           bool   `yaml:"approved" json:"approved"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute,omitempty" json:"rate_limit_per_minute,omitempty"`
}

type SeedResult struct {
	Templates  int
	Skills     int
	MCPServers int
}

// ImportFile loads a YAML registry document and upserts every entry.
func (s *SQLiteStore) ImportFile(ctx context.Context, path string) (SeedResult, error) {
	p, err := pathutil.Expand(path)
	if err != nil {
		return SeedResult{}, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return SeedResult{}, fmt.Errorf("read seed file: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return SeedResult{}, fmt.Errorf("parse seed file %s: %w", p, err)
	}
	return s.Import(ctx, doc)
}

func (s *SQLiteStore) Import(ctx context.Context, doc Document) (SeedResult, error) {
	var res SeedResult

	for _, t := range doc.Templates {
		if _, err := s.UpsertTemplate(ctx, skill.Template{ID: t.ID, Name: t.Name, Description: t.Description, Body: t.Body}); err != nil {
			return res, err
		}
		res.Templates++
	}

	for _, d := range doc.Skills {
		sk := skill.Skill{
			Name:        d.Name,
			Description: d.Description,
			Type:        skill.Type(strings.ToLower(d.Type)),
			TemplateID:  d.TemplateID,
			Status:      skill.Status(strings.ToLower(d.Status)),
			Approved:    d.Approved,
		}
		if len(d.Config) > 0 {
			raw, err := json.Marshal(d.Config)
			if err != nil {
				return res, fmt.Errorf("encode config for skill %q: %w", d.Name, err)
			}
			sk.Config = raw
		}
		if _, err := s.UpsertSkill(ctx, sk); err != nil {
			return res, err
		}
		res.Skills++
	}

	for _, d := range doc.MCPServers {
		if _, err := s.UpsertServer(ctx, skill.MCPServer{
			Name:               d.Name,
			URL:                d.URL,
			Enabled:            d.Enabled,
			Approved:           d.Approved,
			RateLimitPerMinute: d.RateLimitPerMinute,
		}); err != nil {
			return res, err
		}
		res.MCPServers++
	}

	slog.Info("Registry seeded", "templates", res.Templates, "skills", res.Skills, "mcp_servers", res.MCPServers)
	return res, nil
}

// Export snapshots the registry into a Document.
func (s *SQLiteStore) Export(ctx context.Context) (Document, error) {
	var doc Document

	templates, err := s.ListTemplates(ctx)
	if err != nil {
		return doc, err
	}
	for _, t := range templates {
		doc.Templates = append(doc.Templates, TemplateDoc{ID: t.ID, Name: t.Name, Description: t.Description, Body: t.Body})
	}

	skills, err := s.ListSkills(ctx)
	if err != nil {
		return doc, err
	}
	for _, sk := range skills {
		d := SkillDoc{
			Name:        sk.Name,
			Description: sk.Description,
			Type:        string(sk.Type),
			TemplateID:  sk.TemplateID,
			Status:      string(sk.Status),
			Approved:    sk.Approved,
		}
		if len(sk.Config) > 0 {
			if err := json.Unmarshal(sk.Config, &d.Config); err != nil {
				slog.Warn("Exporting skill without unreadable config", "skill", sk.Name, "error", err)
			}
		}
		doc.Skills = append(doc.Skills, d)
	}

	servers, err := s.ListServers(ctx)
	if err != nil {
		return doc, err
	}
	for _, m := range servers {
		doc.MCPServers = append(doc.MCPServers, MCPServerDoc{
			Name:               m.Name,
			URL:                m.URL,
			Enabled:            m.Enabled,
			Approved:           m.Approved,
			RateLimitPerMinute: m.RateLimitPerMinute,
		})
	}
	return doc, nil
}

// ExportFile writes the registry atomically. A ".json" extension selects JSON, anything else YAML.
func (s *SQLiteStore) ExportFile(ctx context.Context, path string) error {
	doc, err := s.Export(ctx)
	if err != nil {
		return err
	}

	p, err := pathutil.EnsureParent(path)
	if err != nil {
		return err
	}

	var data []byte
	if strings.EqualFold(filepath.Ext(p), ".json") {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = yaml.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	return atomic.WriteFile(p, bytes.NewReader(data))
}
