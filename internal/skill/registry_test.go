package skill

import (
	"context"
	"encoding/json"
	"testing"

	clawErrors "github.com/clawsync/clawsync/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry_GetActiveApprovedFilters(t *testing.T) {
	r := NewMemoryRegistry()
	r.PutSkill(Skill{Name: "a", Type: TypeCode, Status: StatusActive, Approved: true})
	r.PutSkill(Skill{Name: "b", Type: TypeCode, Status: StatusPending, Approved: true})
	r.PutSkill(Skill{Name: "c", Type: TypeCode, Status: StatusActive, Approved: false})

	got, err := r.GetActiveApproved(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Name)
}

func TestMemoryRegistry_PutSkillReplacesByName(t *testing.T) {
	r := NewMemoryRegistry()
	r.PutSkill(Skill{Name: "a", Description: "first"})
	r.PutSkill(Skill{Name: "a", Description: "second"})

	s, err := r.GetSkillByName(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "second", s.Description)

	_, err = r.GetSkillByName(context.Background(), "missing")
	assert.ErrorIs(t, err, clawErrors.ErrNotFound)
}

func TestMemoryRegistry_ServersAndHealth(t *testing.T) {
	r := NewMemoryRegistry()
	r.PutServer(MCPServer{ID: "1", Name: "on", URL: "http://a", Enabled: true, Approved: true})
	r.PutServer(MCPServer{ID: "2", Name: "off", URL: "http://b", Enabled: false, Approved: true})

	got, err := r.GetEnabledApproved(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "on", got[0].Name)

	require.NoError(t, r.RecordHealth(context.Background(), "1", HealthHealthy, 3))
	srv, ok := r.Server("on")
	require.True(t, ok)
	assert.Equal(t, HealthHealthy, srv.HealthStatus)
	assert.Equal(t, 3, srv.ToolCount)

	assert.Error(t, r.RecordHealth(context.Background(), "nope", HealthHealthy, 0))
}

func TestMCPServer_Reachable(t *testing.T) {
	assert.True(t, MCPServer{Enabled: true, Approved: true, URL: "http://x"}.Reachable())
	assert.False(t, MCPServer{Enabled: true, Approved: true, URL: "  "}.Reachable())
	assert.False(t, MCPServer{Enabled: true, Approved: false, URL: "http://x"}.Reachable())
}

func TestDecodeConfig_Variants(t *testing.T) {
	cfg, err := DecodeConfig(Skill{Name: "hook", Type: TypeWebhook, Config: json.RawMessage(`{"url":"https://Good.Example/hook","method":"put"}`)})
	require.NoError(t, err)
	wh, ok := cfg.(WebhookConfig)
	require.True(t, ok)
	assert.Equal(t, "PUT", wh.HTTPMethod())
	host, err := wh.Host()
	require.NoError(t, err)
	assert.Equal(t, "good.example", host)

	cfg, err = DecodeConfig(Skill{Name: "legacy", Type: TypeWebhook, Config: json.RawMessage(`{"webhookUrl":"http://legacy.example"}`)})
	require.NoError(t, err)
	assert.Equal(t, "http://legacy.example", cfg.(WebhookConfig).Target())
	assert.Equal(t, "POST", cfg.(WebhookConfig).HTTPMethod())

	cfg, err = DecodeConfig(Skill{Name: "tpl", Type: TypeTemplate, TemplateID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"input"}, cfg.Schema()["required"])

	cfg, err = DecodeConfig(Skill{Name: "code", Type: TypeCode, Config: json.RawMessage(`null`)})
	require.NoError(t, err)
	assert.Equal(t, []string{"query"}, cfg.Schema()["required"])
}

func TestDecodeConfig_Failures(t *testing.T) {
	tests := []struct {
		name  string
		skill Skill
	}{
		{"malformed json", Skill{Name: "x", Type: TypeWebhook, Config: json.RawMessage(`{"url":`)}},
		{"webhook without url", Skill{Name: "x", Type: TypeWebhook, Config: json.RawMessage(`{}`)}},
		{"webhook bad scheme", Skill{Name: "x", Type: TypeWebhook, Config: json.RawMessage(`{"url":"file:///etc/passwd"}`)}},
		{"template without id", Skill{Name: "x", Type: TypeTemplate}},
		{"unknown type", Skill{Name: "x", Type: "shell"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConfig(tt.skill)
			assert.ErrorIs(t, err, clawErrors.ErrConfiguration)
		})
	}
}

func TestDecodeConfig_CustomSchema(t *testing.T) {
	cfg, err := DecodeConfig(Skill{
		Name:   "hook",
		Type:   TypeWebhook,
		Config: json.RawMessage(`{"url":"http://a.example","inputSchema":{"type":"object","properties":{"city":{"type":"string"}}}}`),
	})
	require.NoError(t, err)
	props := cfg.Schema()["properties"].(map[string]any)
	assert.Contains(t, props, "city")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Skill{Name: "a", Type: TypeCode}))
	assert.ErrorIs(t, Validate(Skill{Type: TypeCode}), clawErrors.ErrInvalidInput)
	assert.ErrorIs(t, Validate(Skill{Name: "a", Type: "bogus"}), clawErrors.ErrInvalidInput)
	assert.ErrorIs(t, Validate(Skill{Name: "a", Type: TypeCode, Config: json.RawMessage(`{`)}), clawErrors.ErrInvalidInput)
}
