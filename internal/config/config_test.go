package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, name := range providerKeyEnv {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	clearProviderEnv(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Expected default port %d, got %d", DefaultServerPort, cfg.Server.Port)
	}
	if cfg.Models.Provider != DefaultModelProvider {
		t.Errorf("Expected default provider %s, got %s", DefaultModelProvider, cfg.Models.Provider)
	}
	if cfg.Models.Model != DefaultModelID {
		t.Errorf("Expected default model %s, got %s", DefaultModelID, cfg.Models.Model)
	}
	if cfg.Chat.MaxMessageLength != DefaultChatMaxMessageLength {
		t.Errorf("Expected max message length %d, got %d", DefaultChatMaxMessageLength, cfg.Chat.MaxMessageLength)
	}
	if cfg.Chat.MaxSteps != DefaultChatMaxSteps {
		t.Errorf("Expected max steps %d, got %d", DefaultChatMaxSteps, cfg.Chat.MaxSteps)
	}
	if cfg.Audit.MaxPayloadChars != DefaultAuditMaxPayloadChars {
		t.Errorf("Expected audit payload cap %d, got %d", DefaultAuditMaxPayloadChars, cfg.Audit.MaxPayloadChars)
	}
	if cfg.Audit.Backend != DefaultAuditBackend {
		t.Errorf("Expected audit backend %s, got %s", DefaultAuditBackend, cfg.Audit.Backend)
	}
	if cfg.MCP.FetchTimeout != DefaultMCPFetchTimeout {
		t.Errorf("Expected mcp fetch timeout %s, got %s", DefaultMCPFetchTimeout, cfg.MCP.FetchTimeout)
	}
	if cfg.MCP.MaxServers != DefaultMCPMaxServers {
		t.Errorf("Expected mcp max servers %d, got %d", DefaultMCPMaxServers, cfg.MCP.MaxServers)
	}
	if cfg.Health.Schedule != DefaultHealthSchedule {
		t.Errorf("Expected health schedule %s, got %s", DefaultHealthSchedule, cfg.Health.Schedule)
	}
	if len(cfg.Security.DomainAllowlist) != 0 {
		t.Errorf("Expected empty domain allowlist, got %v", cfg.Security.DomainAllowlist)
	}

	wantStore := filepath.Join(home, ".clawsync", "clawsync.db")
	if cfg.Store.Path != wantStore {
		t.Errorf("Expected store path %s, got %s", wantStore, cfg.Store.Path)
	}
}

func TestLoadWithConfigFlag(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearProviderEnv(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := []byte(`
server:
  port: 9090
models:
  provider: openrouter
  model: meta-llama/llama-3-70b
  fallback_provider: anthropic
  fallback_model: claude-3-5-haiku-latest
  providers:
    openrouter:
      api_key: or-key
security:
  domain_allowlist:
    - good.example
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("failed to load config with --config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Models.Provider != "openrouter" || cfg.Models.FallbackModel != "claude-3-5-haiku-latest" {
		t.Fatalf("unexpected models config: %+v", cfg.Models)
	}
	if cfg.Models.Providers["openrouter"].APIKey != "or-key" {
		t.Fatalf("expected openrouter key from file, got %q", cfg.Models.Providers["openrouter"].APIKey)
	}
	if len(cfg.Security.DomainAllowlist) != 1 || cfg.Security.DomainAllowlist[0] != "good.example" {
		t.Fatalf("unexpected allowlist: %v", cfg.Security.DomainAllowlist)
	}
}

func TestLoadWithMissingConfigFlagReturnsError(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}

	if _, err := Load(cmd); err == nil {
		t.Fatal("expected error when --config points to missing file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearProviderEnv(t)
	t.Setenv("CLAWSYNC_SERVER__LOG_LEVEL", "debug")
	t.Setenv("CLAWSYNC_CHAT__MAX_STEPS", "3")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.LogLevel != "debug" {
		t.Fatalf("log level = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Chat.MaxSteps != 3 {
		t.Fatalf("max steps = %d, want 3", cfg.Chat.MaxSteps)
	}
}

func TestLoad_InjectsProviderKeysFromEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if got := cfg.Models.Providers["anthropic"].APIKey; got != "sk-ant" {
		t.Fatalf("anthropic key = %q, want sk-ant", got)
	}
	if _, ok := cfg.Models.Providers["openai"]; ok {
		t.Fatal("openai should not be populated without a key")
	}
}

func TestLoad_ExpandsConfiguredPaths(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearProviderEnv(t)

	configPath := filepath.Join(tmpDir, "config.yaml")
	content := []byte(`
store:
  path: ~/.clawsync/custom.db
audit:
  backend: jsonl
  path: ~/.clawsync/audit.jsonl
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("set config flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if want := filepath.Join(tmpDir, ".clawsync", "custom.db"); cfg.Store.Path != want {
		t.Fatalf("store path = %q, want %q", cfg.Store.Path, want)
	}
	if want := filepath.Join(tmpDir, ".clawsync", "audit.jsonl"); cfg.Audit.Path != want {
		t.Fatalf("audit path = %q, want %q", cfg.Audit.Path, want)
	}
}

func TestDurationOrDefault(t *testing.T) {
	d, err := DurationOrDefault("", DefaultMCPFetchTimeout)
	if err != nil || d.Seconds() != 10 {
		t.Fatalf("DurationOrDefault default = %v, %v", d, err)
	}
	d, err = DurationOrDefault(" 250ms ", DefaultMCPFetchTimeout)
	if err != nil || d.Milliseconds() != 250 {
		t.Fatalf("DurationOrDefault explicit = %v, %v", d, err)
	}
	if _, err := DurationOrDefault("soon", ""); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := DurationOrDefault("", ""); err == nil {
		t.Fatal("expected empty error")
	}
}

func TestIntOrDefault(t *testing.T) {
	if got := IntOrDefault(0, DefaultChatMaxSteps); got != DefaultChatMaxSteps {
		t.Fatalf("IntOrDefault(0) = %d", got)
	}
	if got := IntOrDefault(-1, 7); got != 7 {
		t.Fatalf("IntOrDefault(-1) = %d", got)
	}
	if got := IntOrDefault(3, 7); got != 3 {
		t.Fatalf("IntOrDefault(3) = %d", got)
	}
}
