package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clawsync/clawsync/internal/config"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `templates:
  - id: greet
    name: greet
    body: "Hello {{.Input.input}}"
skills:
  - name: Greeter
    description: Greets someone
    skill_type: template
    template_id: greet
    status: active
    approved: true
  - name: Pending Skill
    skill_type: template
    template_id: greet
    status: pending
    approved: false
`

func useTestConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	prev := cfg
	cfg = &config.Config{
		Models: config.ModelsConfig{
			Provider:  "anthropic",
			Model:     config.DefaultModelID,
			Providers: map[string]config.ProviderConfig{"anthropic": {APIKey: "sk-test"}},
		},
		Security: config.SecurityConfig{MaxInputBytes: 1024, SkillRateLimitPerMinute: 10},
		MCP:      config.MCPConfig{MaxServers: 5},
		Audit:    config.AuditConfig{Backend: "sqlite", Path: filepath.Join(dir, "audit.db")},
		Store:    config.StoreConfig{Path: filepath.Join(dir, "clawsync.db"), LockTimeout: "1s"},
	}
	t.Cleanup(func() { cfg = prev })
}

func newTestCmd() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	return cmd, &out
}

func seedRegistry(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0644))

	cmd, out := newTestCmd()
	require.NoError(t, seedCmd.RunE(cmd, []string{path}))
	assert.Contains(t, out.String(), "Seeded 1 template(s), 2 skill(s), 0 MCP server(s)")
}

func TestSkillsListCmd(t *testing.T) {
	useTestConfig(t)
	seedRegistry(t)

	cmd, out := newTestCmd()
	require.NoError(t, skillsListCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "Greeter")
	assert.Contains(t, out.String(), "Pending Skill")
	assert.Contains(t, out.String(), "No MCP servers registered")
}

func TestToolsCmds(t *testing.T) {
	useTestConfig(t)
	seedRegistry(t)

	cmd, out := newTestCmd()
	require.NoError(t, toolsListCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "Greeter")
	assert.NotContains(t, out.String(), "Pending")

	cmd, out = newTestCmd()
	cmd.Flags().String("args", `{"input":"cli"}`, "")
	require.NoError(t, toolsCallCmd.RunE(cmd, []string{"Greeter"}))
	assert.Contains(t, out.String(), "Hello cli")

	cmd, _ = newTestCmd()
	err := toolsCallCmd.RunE(cmd, []string{"missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tool not found: missing")

	cmd, out = newTestCmd()
	require.NoError(t, auditTailCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "Greeter")
	assert.Contains(t, out.String(), "cli")
}

func TestParseToolArgs(t *testing.T) {
	got, err := parseToolArgs("  ")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(got))

	got, err = parseToolArgs(`{"q":1}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"q":1}`, string(got))

	_, err = parseToolArgs(`[1,2]`)
	assert.Error(t, err)
}

func TestRegistryExportCmd(t *testing.T) {
	useTestConfig(t)
	seedRegistry(t)

	path := filepath.Join(t.TempDir(), "out", "registry.yaml")
	cmd, _ := newTestCmd()
	require.NoError(t, registryExportCmd.RunE(cmd, []string{path}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: Greeter")
	assert.Contains(t, string(data), "id: greet")
}

func TestModelResolveCmd(t *testing.T) {
	useTestConfig(t)

	cmd, out := newTestCmd()
	require.NoError(t, modelResolveCmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "anthropic")
	assert.Contains(t, out.String(), config.DefaultModelID)

	cmd, out = newTestCmd()
	require.NoError(t, modelProvidersCmd.RunE(cmd, nil))
	assert.True(t, strings.Contains(out.String(), "openrouter"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcd...", truncateString("abcdefghij", 7))
	assert.Equal(t, "ab", truncateString("abcdef", 2))
}
