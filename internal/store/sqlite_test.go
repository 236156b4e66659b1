package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	clawErrors "github.com/clawsync/clawsync/internal/errors"
	"github.com/clawsync/clawsync/internal/skill"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxServers int) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "registry.db"), maxServers)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSkills_UpsertAndFilter(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	_, err := s.UpsertSkill(ctx, skill.Skill{Name: "Get Weather!", Type: skill.TypeWebhook,
		Config: json.RawMessage(`{"url":"http://good.example/hook"}`), Status: skill.StatusActive, Approved: true})
	require.NoError(t, err)
	_, err = s.UpsertSkill(ctx, skill.Skill{Name: "draft", Type: skill.TypeCode})
	require.NoError(t, err)

	active, err := s.GetActiveApproved(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Get Weather!", active[0].Name)
	assert.JSONEq(t, `{"url":"http://good.example/hook"}`, string(active[0].Config))
	assert.NotEmpty(t, active[0].ID)

	draft, err := s.GetSkillByName(ctx, "draft")
	require.NoError(t, err)
	assert.Equal(t, skill.StatusPending, draft.Status)
	assert.False(t, draft.Approved)

	require.NoError(t, s.SetSkillState(ctx, "draft", skill.StatusActive, true))
	active, err = s.GetActiveApproved(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	assert.ErrorIs(t, s.SetSkillState(ctx, "missing", skill.StatusActive, true), clawErrors.ErrNotFound)
	_, err = s.GetSkillByName(ctx, "missing")
	assert.ErrorIs(t, err, clawErrors.ErrNotFound)
}

func TestSkills_UpsertUpdatesByName(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	first, err := s.UpsertSkill(ctx, skill.Skill{Name: "echo", Type: skill.TypeCode, Description: "v1"})
	require.NoError(t, err)
	_, err = s.UpsertSkill(ctx, skill.Skill{Name: "echo", Type: skill.TypeCode, Description: "v2"})
	require.NoError(t, err)

	all, err := s.ListSkills(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "v2", all[0].Description)
	assert.Equal(t, first.ID, all[0].ID)
}

func TestSkills_RejectsInvalid(t *testing.T) {
	s := newTestStore(t, 0)
	_, err := s.UpsertSkill(context.Background(), skill.Skill{Name: "", Type: skill.TypeCode})
	assert.ErrorIs(t, err, clawErrors.ErrInvalidInput)
}

func TestServers_AddDefaultsAndCap(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()

	added, err := s.AddServer(ctx, skill.MCPServer{Name: "new", URL: "http://a", Enabled: true, Approved: true})
	require.NoError(t, err)
	assert.False(t, added.Enabled)
	assert.False(t, added.Approved)
	assert.Equal(t, 50, added.RateLimitPerMinute)

	for _, name := range []string{"one", "two", "three"} {
		_, err := s.UpsertServer(ctx, skill.MCPServer{Name: name, URL: "http://" + name, Enabled: true, Approved: true})
		require.NoError(t, err)
	}

	got, err := s.GetEnabledApproved(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2, "capped at maxServers")
	assert.Equal(t, "one", got[0].Name)

	require.NoError(t, s.SetServerState(ctx, "new", true, true))
	srv, err := s.GetServerByName(ctx, "new")
	require.NoError(t, err)
	assert.True(t, srv.Enabled)

	require.NoError(t, s.RecordHealth(ctx, srv.ID, skill.HealthHealthy, 4))
	srv, err = s.GetServerByName(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, skill.HealthHealthy, srv.HealthStatus)
	assert.Equal(t, 4, srv.ToolCount)
	assert.False(t, srv.LastHealthCheck.IsZero())

	assert.ErrorIs(t, s.RecordHealth(ctx, "nope", skill.HealthHealthy, 0), clawErrors.ErrNotFound)
}

func TestTemplates(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	_, err := s.UpsertTemplate(ctx, skill.Template{ID: "greet", Name: "Greeting", Body: "Hello {{.Input.input}}"})
	require.NoError(t, err)

	got, err := s.GetTemplate(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, "Hello {{.Input.input}}", got.Body)

	_, err = s.UpsertTemplate(ctx, skill.Template{ID: "bad", Name: "Bad", Body: "{{.Input"})
	assert.ErrorIs(t, err, clawErrors.ErrInvalidInput)

	_, err = s.GetTemplate(ctx, "missing")
	assert.ErrorIs(t, err, clawErrors.ErrNotFound)
}

func TestSeedImportAndExportRoundTrip(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()
	dir := t.TempDir()

	seed := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`
templates:
  - id: greet
    name: Greeting
    body: "Hello {{.Input.input}}"
skills:
  - name: Get Weather!
    skill_type: webhook
    status: active
    approved: true
    config:
      url: http://good.example/hook
      headers:
        X-Api: abc
  - name: Greeter
    skill_type: template
    template_id: greet
    status: active
    approved: true
mcp_servers:
  - name: search
    url: http://mcp.example/mcp
    enabled: true
    approved: true
`), 0o644))

	res, err := s.ImportFile(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Templates: 1, Skills: 2, MCPServers: 1}, res)

	sk, err := s.GetSkillByName(ctx, "Get Weather!")
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"http://good.example/hook","headers":{"X-Api":"abc"}}`, string(sk.Config))

	out := filepath.Join(dir, "export", "registry.json")
	require.NoError(t, s.ExportFile(ctx, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc.Skills, 2)
	assert.Len(t, doc.Templates, 1)
	require.Len(t, doc.MCPServers, 1)
	assert.Equal(t, "http://mcp.example/mcp", doc.MCPServers[0].URL)

	yamlOut := filepath.Join(dir, "registry.yaml")
	require.NoError(t, s.ExportFile(ctx, yamlOut))

	other := newTestStore(t, 0)
	res, err = other.ImportFile(ctx, yamlOut)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skills)
}

func TestImportFile_Errors(t *testing.T) {
	s := newTestStore(t, 0)
	_, err := s.ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("skills: [\n"), 0o644))
	_, err = s.ImportFile(context.Background(), bad)
	assert.Error(t, err)
}
