package model

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/clawsync/clawsync/internal/config"
	clawErrors "github.com/clawsync/clawsync/internal/errors"
	"github.com/clawsync/clawsync/internal/logger"
	"github.com/clawsync/clawsync/internal/model/contract"
	anthropicProvider "github.com/clawsync/clawsync/internal/model/providers/anthropic"
	geminiProvider "github.com/clawsync/clawsync/internal/model/providers/gemini"
	openaiProvider "github.com/clawsync/clawsync/internal/model/providers/openai"
)

const (
	ProviderAnthropic   = "anthropic"
	ProviderOpenAI      = "openai"
	ProviderOpenRouter  = "openrouter"
	ProviderXAI         = "xai"
	ProviderOpenCodeZen = "opencode-zen"
	ProviderCustom      = "custom"
	ProviderGemini      = "gemini"

	OpenRouterBaseURL  = "https://openrouter.ai/api/v1"
	XAIBaseURL         = "https://api.x.ai/v1"
	OpenCodeZenBaseURL = "https://opencode.ai/zen/v1"

	// customSeparator splits a custom model id into "baseURL::modelID".
	customSeparator = "::"
)

// Provider is a constructed model handle. Generate is the only call that
// touches the network.
type Provider interface {
	Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
	Name() string
	ModelID() string
}

// ModelConfig is the agent's model selection. A nil *ModelConfig means no
// configuration exists.
type ModelConfig struct {
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	FallbackProvider string `json:"fallbackProvider,omitempty"`
	FallbackModel    string `json:"fallbackModel,omitempty"`
}

// ConfigFrom lifts the models section into a ModelConfig.
func ConfigFrom(cfg config.ModelsConfig) *ModelConfig {
	return &ModelConfig{
		Provider:         cfg.Provider,
		Model:            cfg.Model,
		FallbackProvider: cfg.FallbackProvider,
		FallbackModel:    cfg.FallbackModel,
	}
}

type ResolvedModel struct {
	Model      Provider
	ProviderID string
	ModelID    string
	IsFallback bool
}

// Spec is what a Recipe receives to construct a provider.
type Spec struct {
	ProviderID  string
	ModelID     string
	Credentials config.ProviderConfig
	MaxTokens   int
}

// Recipe constructs a provider handle. It must not perform network I/O.
type Recipe func(ctx context.Context, spec Spec) (Provider, error)

type ProviderInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AvailableProviders lists the provider ids the resolver understands.
func AvailableProviders() []ProviderInfo {
	return []ProviderInfo{
		{ID: ProviderAnthropic, Name: "Anthropic", Description: "Claude models via direct API"},
		{ID: ProviderOpenAI, Name: "OpenAI", Description: "GPT models via direct API"},
		{ID: ProviderOpenRouter, Name: "OpenRouter", Description: "Access 300+ models via unified API"},
		{ID: ProviderXAI, Name: "xAI", Description: "Grok models via xAI API"},
		{ID: ProviderOpenCodeZen, Name: "OpenCode Zen", Description: "Curated, tested models"},
		{ID: ProviderGemini, Name: "Google Gemini", Description: "Gemini models via the Gemini API"},
		{ID: ProviderCustom, Name: "Custom Provider", Description: "Any OpenAI-compatible API"},
	}
}

// Resolver maps a ModelConfig to a constructed provider, falling back to
// the configured fallback and then to the built-in default.
type Resolver struct {
	mu          sync.RWMutex
	recipes     map[string]Recipe
	credentials map[string]config.ProviderConfig
	maxTokens   int
}

func NewResolver(cfg config.ModelsConfig) *Resolver {
	creds := make(map[string]config.ProviderConfig, len(cfg.Providers))
	for id, pc := range cfg.Providers {
		creds[strings.ToLower(id)] = pc
	}

	r := &Resolver{
		recipes:     make(map[string]Recipe),
		credentials: creds,
		maxTokens:   cfg.MaxTokens,
	}
	r.Register(ProviderAnthropic, anthropicRecipe)
	r.Register(ProviderOpenAI, openAICompatibleRecipe("", nil))
	r.Register(ProviderOpenRouter, openAICompatibleRecipe(OpenRouterBaseURL, map[string]string{
		"HTTP-Referer": "https://clawsync.dev",
		"X-Title":      "ClawSync",
	}))
	r.Register(ProviderXAI, openAICompatibleRecipe(XAIBaseURL, nil))
	r.Register(ProviderOpenCodeZen, openAICompatibleRecipe(OpenCodeZenBaseURL, nil))
	r.Register(ProviderCustom, customRecipe)
	r.Register(ProviderGemini, geminiRecipe)
	return r
}

// Register installs or replaces the recipe for a provider id.
func (r *Resolver) Register(id string, recipe Recipe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipes[strings.ToLower(id)] = recipe
}

// Build constructs a single provider. Unknown ids use the anthropic recipe.
func (r *Resolver) Build(ctx context.Context, providerID, modelID string) (Provider, error) {
	id := strings.ToLower(strings.TrimSpace(providerID))
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, clawErrors.Configuration(fmt.Sprintf("provider %q: model id is empty", providerID))
	}

	r.mu.RLock()
	recipe, ok := r.recipes[id]
	if !ok {
		recipe = r.recipes[ProviderAnthropic]
	}
	creds, hasCreds := r.credentials[id]
	if !hasCreds && !ok {
		creds = r.credentials[ProviderAnthropic]
	}
	r.mu.RUnlock()

	if recipe == nil {
		return nil, clawErrors.Configuration(fmt.Sprintf("no recipe for provider %q", providerID))
	}

	p, err := recipe(ctx, Spec{ProviderID: id, ModelID: modelID, Credentials: creds, MaxTokens: r.maxTokens})
	if err != nil {
		return nil, clawErrors.WrapWithCategory(err, fmt.Sprintf("construct %s/%s", providerID, modelID), clawErrors.ErrConfiguration)
	}
	return p, nil
}

// Resolve never returns an error unless the built-in default itself cannot
// be constructed.
func (r *Resolver) Resolve(ctx context.Context, mc *ModelConfig) (ResolvedModel, error) {
	if mc == nil {
		return r.resolveDefault(ctx, false)
	}

	primary, err := r.Build(ctx, mc.Provider, mc.Model)
	if err == nil {
		return ResolvedModel{Model: primary, ProviderID: mc.Provider, ModelID: mc.Model}, nil
	}
	slog.Warn("Primary model unavailable", append([]any{"provider", mc.Provider, "model", mc.Model, "error", err}, logger.Attrs(ctx)...)...)

	if mc.FallbackProvider != "" && mc.FallbackModel != "" {
		fallback, ferr := r.Build(ctx, mc.FallbackProvider, mc.FallbackModel)
		if ferr == nil {
			slog.Info("Using fallback model", "provider", mc.FallbackProvider, "model", mc.FallbackModel)
			return ResolvedModel{Model: fallback, ProviderID: mc.FallbackProvider, ModelID: mc.FallbackModel, IsFallback: true}, nil
		}
		slog.Warn("Fallback model unavailable", "provider", mc.FallbackProvider, "model", mc.FallbackModel, "error", ferr)
	}

	return r.resolveDefault(ctx, true)
}

func (r *Resolver) resolveDefault(ctx context.Context, isFallback bool) (ResolvedModel, error) {
	p, err := r.Build(ctx, config.DefaultModelProvider, config.DefaultModelID)
	if err != nil {
		return ResolvedModel{}, clawErrors.WrapWithCategory(err, "default model unavailable", clawErrors.ErrConfiguration)
	}
	return ResolvedModel{
		Model:      p,
		ProviderID: config.DefaultModelProvider,
		ModelID:    config.DefaultModelID,
		IsFallback: isFallback,
	}, nil
}

func requireKey(spec Spec) error {
	if strings.TrimSpace(spec.Credentials.APIKey) == "" {
		return clawErrors.Configuration(fmt.Sprintf("API key required for %s provider", spec.ProviderID))
	}
	return nil
}

func anthropicRecipe(_ context.Context, spec Spec) (Provider, error) {
	if err := requireKey(spec); err != nil {
		return nil, err
	}
	return anthropicProvider.New(spec.Credentials.APIKey, spec.Credentials.BaseURL, spec.ModelID, spec.MaxTokens), nil
}

func openAICompatibleRecipe(defaultBaseURL string, headers map[string]string) Recipe {
	return func(_ context.Context, spec Spec) (Provider, error) {
		if err := requireKey(spec); err != nil {
			return nil, err
		}
		baseURL := spec.Credentials.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		return openaiProvider.New(openaiProvider.Options{
			Name:      spec.ProviderID,
			APIKey:    spec.Credentials.APIKey,
			BaseURL:   baseURL,
			Model:     spec.ModelID,
			MaxTokens: spec.MaxTokens,
			Headers:   headers,
		}), nil
	}
}

// customRecipe targets any OpenAI-compatible endpoint. The key is optional
// since self-hosted endpoints often run without one.
func customRecipe(_ context.Context, spec Spec) (Provider, error) {
	baseURL, modelID, ok := strings.Cut(spec.ModelID, customSeparator)
	baseURL = strings.TrimSpace(baseURL)
	modelID = strings.TrimSpace(modelID)
	if !ok || baseURL == "" || modelID == "" {
		return nil, clawErrors.Configuration(fmt.Sprintf("custom model id %q must be baseURL::modelID", spec.ModelID))
	}
	return openaiProvider.New(openaiProvider.Options{
		Name:      ProviderCustom,
		APIKey:    spec.Credentials.APIKey,
		BaseURL:   baseURL,
		Model:     modelID,
		MaxTokens: spec.MaxTokens,
	}), nil
}

func geminiRecipe(ctx context.Context, spec Spec) (Provider, error) {
	if err := requireKey(spec); err != nil {
		return nil, err
	}
	return geminiProvider.New(ctx, spec.Credentials.APIKey, spec.ModelID, spec.MaxTokens)
}
