package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/clawsync/clawsync/internal/pathutil"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Models    ModelsConfig    `koanf:"models"`
	Security  SecurityConfig  `koanf:"security"`
	MCP       MCPConfig       `koanf:"mcp"`
	Executor  ExecutorConfig  `koanf:"executor"`
	Audit     AuditConfig     `koanf:"audit"`
	Store     StoreConfig     `koanf:"store"`
	Chat      ChatConfig      `koanf:"chat"`
	Health    HealthConfig    `koanf:"health"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Daemon    DaemonConfig    `koanf:"daemon"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

// ModelsConfig selects the agent model. Provider credentials are keyed by provider id.
type ModelsConfig struct {
	Provider         string                    `koanf:"provider"`
	Model            string                    `koanf:"model"`
	FallbackProvider string                    `koanf:"fallback_provider"`
	FallbackModel    string                    `koanf:"fallback_model"`
	MaxTokens        int                       `koanf:"max_tokens"`
	RequestTimeout   string                    `koanf:"request_timeout"`
	Providers        map[string]ProviderConfig `koanf:"providers"`
}

type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

type SecurityConfig struct {
	DomainAllowlist         []string `koanf:"domain_allowlist"`
	BlockedPatterns         []string `koanf:"blocked_patterns"`
	MaxInputBytes           int      `koanf:"max_input_bytes"`
	SkillRateLimitPerMinute int      `koanf:"skill_rate_limit_per_minute"`
}

type MCPConfig struct {
	FetchTimeout     string `koanf:"fetch_timeout"`
	CallTimeout      string `koanf:"call_timeout"`
	MaxParallel      int    `koanf:"max_parallel"`
	MaxServers       int    `koanf:"max_servers"`
	MaxResponseBytes int64  `koanf:"max_response_bytes"`
	ServerName       string `koanf:"server_name"`
	ServerVersion    string `koanf:"server_version"`
}

type ExecutorConfig struct {
	WebhookTimeout   string `koanf:"webhook_timeout"`
	MaxResponseBytes int64  `koanf:"max_response_bytes"`
}

type AuditConfig struct {
	Backend         string   `koanf:"backend"`
	Path            string   `koanf:"path"`
	MaxPayloadChars int      `koanf:"max_payload_chars"`
	RedactPatterns  []string `koanf:"redact_patterns"`
}

type StoreConfig struct {
	Path        string `koanf:"path"`
	LockTimeout string `koanf:"lock_timeout"`
}

type ChatConfig struct {
	SessionLimitPerMinute int    `koanf:"session_limit_per_minute"`
	GlobalLimitPerMinute  int    `koanf:"global_limit_per_minute"`
	MaxMessageLength      int    `koanf:"max_message_length"`
	MaxSteps              int    `koanf:"max_steps"`
	ToolResultMaxChars    int    `koanf:"tool_result_max_chars"`
	SoulDocument          string `koanf:"soul_document"`
	SystemPrompt          string `koanf:"system_prompt"`
}

type HealthConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Schedule string `koanf:"schedule"`
	Timeout  string `koanf:"timeout"`
	// MaxParallel bounds concurrent checks. Zero falls back to mcp.max_parallel.
	MaxParallel int `koanf:"max_parallel"`
}

type TelemetryConfig struct {
	Exporter    string `koanf:"exporter"`
	ServiceName string `koanf:"service_name"`
}

type DaemonConfig struct {
	ShutdownTimeout     string `koanf:"shutdown_timeout"`
	HealthCheckInterval string `koanf:"health_check_interval"`
}

const (
	DefaultServerPort               = 8080
	DefaultServerLogLevel           = "info"
	DefaultServerReadTimeout        = "10s"
	DefaultServerWriteTimeout       = "120s"
	DefaultServerIdleTimeout        = "60s"
	DefaultServerShutdownTimeout    = "5s"
	DefaultModelProvider            = "anthropic"
	DefaultModelID                  = "claude-sonnet-4-20250514"
	DefaultModelMaxTokens           = 4096
	DefaultModelRequestTimeout      = "120s"
	DefaultSecurityMaxInputBytes    = 64 * 1024
	DefaultSecuritySkillRateLimit   = 60
	DefaultMCPFetchTimeout          = "10s"
	DefaultMCPCallTimeout           = "30s"
	DefaultMCPMaxParallel           = 8
	DefaultMCPMaxServers            = 50
	DefaultMCPRateLimitPerMinute    = 50
	DefaultMCPMaxResponseBytes      = 4 * 1024 * 1024
	DefaultMCPServerName            = "clawsync"
	DefaultMCPServerVersion         = "1.0.0"
	DefaultExecutorWebhookTimeout   = "30s"
	DefaultExecutorMaxResponseBytes = 1024 * 1024
	DefaultAuditBackend             = "sqlite"
	DefaultAuditMaxPayloadChars     = 1000
	DefaultStoreLockTimeout         = "5s"
	DefaultChatSessionLimit         = 10
	DefaultChatGlobalLimit          = 200
	DefaultChatMaxMessageLength     = 4000
	DefaultChatMaxSteps             = 5
	DefaultChatToolResultMaxChars   = 1000
	DefaultChatSystemPrompt         = "You are a helpful assistant. Use the available tools when they help answer the user."
	DefaultHealthEnabled            = true
	DefaultHealthSchedule           = "@every 5m"
	DefaultHealthTimeout            = "10s"
	DefaultTelemetryExporter        = "none"
	DefaultTelemetryServiceName     = "clawsync"
	DefaultDaemonShutdownTimeout    = "30s"
	DefaultDaemonHealthInterval     = "30s"
)

// providerKeyEnv lists the conventional API key variables injected when a provider has no key configured.
var providerKeyEnv = map[string]string{
	"anthropic":    "ANTHROPIC_API_KEY",
	"openai":       "OPENAI_API_KEY",
	"openrouter":   "OPENROUTER_API_KEY",
	"xai":          "XAI_API_KEY",
	"opencode-zen": "OPENCODE_ZEN_API_KEY",
	"gemini":       "GEMINI_API_KEY",
}

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                          DefaultServerPort,
		"server.log_level":                     DefaultServerLogLevel,
		"server.read_timeout":                  DefaultServerReadTimeout,
		"server.write_timeout":                 DefaultServerWriteTimeout,
		"server.idle_timeout":                  DefaultServerIdleTimeout,
		"server.shutdown_timeout":              DefaultServerShutdownTimeout,
		"models.provider":                      DefaultModelProvider,
		"models.model":                         DefaultModelID,
		"models.max_tokens":                    DefaultModelMaxTokens,
		"models.request_timeout":               DefaultModelRequestTimeout,
		"security.domain_allowlist":            []string{},
		"security.blocked_patterns":            []string{},
		"security.max_input_bytes":             DefaultSecurityMaxInputBytes,
		"security.skill_rate_limit_per_minute": DefaultSecuritySkillRateLimit,
		"mcp.fetch_timeout":                    DefaultMCPFetchTimeout,
		"mcp.call_timeout":                     DefaultMCPCallTimeout,
		"mcp.max_parallel":                     DefaultMCPMaxParallel,
		"mcp.max_servers":                      DefaultMCPMaxServers,
		"mcp.max_response_bytes":               DefaultMCPMaxResponseBytes,
		"mcp.server_name":                      DefaultMCPServerName,
		"mcp.server_version":                   DefaultMCPServerVersion,
		"executor.webhook_timeout":             DefaultExecutorWebhookTimeout,
		"executor.max_response_bytes":          DefaultExecutorMaxResponseBytes,
		"audit.backend":                        DefaultAuditBackend,
		"audit.path":                           filepath.Join(os.Getenv("HOME"), ".clawsync", "audit.db"),
		"audit.max_payload_chars":              DefaultAuditMaxPayloadChars,
		"audit.redact_patterns":                []string{`(?i)(api[_-]?key|token|secret|password)"?\s*[:=]\s*"?[^",\s}]+`},
		"store.path":                           filepath.Join(os.Getenv("HOME"), ".clawsync", "clawsync.db"),
		"store.lock_timeout":                   DefaultStoreLockTimeout,
		"chat.session_limit_per_minute":        DefaultChatSessionLimit,
		"chat.global_limit_per_minute":         DefaultChatGlobalLimit,
		"chat.max_message_length":              DefaultChatMaxMessageLength,
		"chat.max_steps":                       DefaultChatMaxSteps,
		"chat.tool_result_max_chars":           DefaultChatToolResultMaxChars,
		"chat.system_prompt":                   DefaultChatSystemPrompt,
		"health.enabled":                       DefaultHealthEnabled,
		"health.schedule":                      DefaultHealthSchedule,
		"health.timeout":                       DefaultHealthTimeout,
		"telemetry.exporter":                   DefaultTelemetryExporter,
		"telemetry.service_name":               DefaultTelemetryServiceName,
		"daemon.shutdown_timeout":              DefaultDaemonShutdownTimeout,
		"daemon.health_check_interval":         DefaultDaemonHealthInterval,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		expanded, err := pathutil.Expand(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(expanded), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".clawsync", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// CLAWSYNC_SERVER__LOG_LEVEL -> server.log_level; a double underscore separates sections.
	k.Load(env.Provider("CLAWSYNC_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "CLAWSYNC_")), "__", ".")
	}), nil)

	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	injectProviderKeys(&cfg)

	return &cfg, nil
}

func injectProviderKeys(cfg *Config) {
	if cfg.Models.Providers == nil {
		cfg.Models.Providers = make(map[string]ProviderConfig)
	}
	for provider, envName := range providerKeyEnv {
		key := os.Getenv(envName)
		if key == "" {
			continue
		}
		pc := cfg.Models.Providers[provider]
		if pc.APIKey == "" {
			pc.APIKey = key
			cfg.Models.Providers[provider] = pc
		}
	}
}

func normalizePathFields(cfg *Config) error {
	for _, p := range []*string{&cfg.Store.Path, &cfg.Audit.Path} {
		expanded, err := pathutil.Expand(*p)
		if err != nil {
			return err
		}
		if expanded != "" {
			*p = expanded
		}
	}
	return nil
}
