package provider

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/agentcore/server/internal/logging"
)

// Kind identifies which concrete Provider construction a Spec selects.
type Kind string

const (
	KindAnthropic        Kind = "anthropic"
	KindOpenAI           Kind = "openai"
	KindOpenAICompatible Kind = "openai-compatible"
)

// Spec is the provider-owned shape of a single provider's configuration,
// deliberately independent of internal/config's application config schema
// so the provider package has no upward dependency on it.
type Spec struct {
	ID      string
	Kind    Kind
	APIKey  string
	BaseURL string
	Model   string

	MaxTokens int

	UseAzure   bool
	APIVersion string

	UseBedrock bool
	Region     string
	Profile    string
}

// Registry manages all available providers and the default-model policy
// over them.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	defaultSpec string // "provider/model", empty if unset
}

// NewRegistry creates a new, empty provider registry.
func NewRegistry(defaultModel string) *Registry {
	return &Registry{
		providers:   make(map[string]Provider),
		defaultSpec: defaultModel,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns all registered providers.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	return providers
}

// GetModel retrieves a specific model from a provider.
func (r *Registry) GetModel(providerID, modelID string) (*Model, error) {
	provider, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}

	for _, m := range provider.Models() {
		if m.ID == modelID {
			return &m, nil
		}
	}

	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// AllModels returns all models from all registered providers, ordered by
// priority (newest/highest-capability first).
func (r *Registry) AllModels() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []Model
	for _, p := range r.providers {
		models = append(models, p.Models()...)
	}

	sort.Slice(models, func(i, j int) bool {
		return modelPriority(models[i].ID) > modelPriority(models[j].ID)
	})

	return models
}

// DefaultModel returns the model the runner should use when a session
// doesn't pin one.
func (r *Registry) DefaultModel() (*Model, error) {
	if r.defaultSpec != "" {
		providerID, modelID := ParseModelString(r.defaultSpec)
		if providerID != "" {
			return r.GetModel(providerID, modelID)
		}
	}

	if m, err := r.GetModel("anthropic", "claude-sonnet-4-20250514"); err == nil {
		return m, nil
	}

	models := r.AllModels()
	if len(models) == 0 {
		return nil, fmt.Errorf("no models available")
	}
	return &models[0], nil
}

// ParseModelString parses "provider/model" format.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// modelPriority ranks models for AllModels' default ordering.
func modelPriority(modelID string) int {
	switch {
	case strings.Contains(modelID, "gpt-5"):
		return 100
	case strings.Contains(modelID, "claude-sonnet-4"):
		return 90
	case strings.Contains(modelID, "claude-opus"):
		return 85
	case strings.Contains(modelID, "gpt-4o"):
		return 80
	case strings.Contains(modelID, "claude-3-5"):
		return 75
	case strings.Contains(modelID, "gemini-2"):
		return 70
	default:
		return 50
	}
}

// InitializeProviders constructs and registers a Provider for every
// enabled Spec, then auto-registers anthropic/openai from their
// well-known environment variables for any provider kind not already
// configured.
func InitializeProviders(ctx context.Context, specs []Spec, defaultModel string) (*Registry, error) {
	registry := NewRegistry(defaultModel)

	configured := make(map[Kind]bool)

	for _, spec := range specs {
		configured[spec.Kind] = true

		var provider Provider
		var err error

		switch spec.Kind {
		case KindAnthropic:
			if spec.APIKey != "" || spec.UseBedrock {
				provider, err = NewAnthropicProvider(ctx, &AnthropicConfig{
					ID:         spec.ID,
					APIKey:     spec.APIKey,
					BaseURL:    spec.BaseURL,
					Model:      spec.Model,
					MaxTokens:  orDefault(spec.MaxTokens, 8192),
					UseBedrock: spec.UseBedrock,
					Region:     spec.Region,
					Profile:    spec.Profile,
				})
			}

		case KindOpenAI, KindOpenAICompatible:
			if spec.APIKey != "" || spec.BaseURL != "" {
				provider, err = NewOpenAIProvider(ctx, &OpenAIConfig{
					ID:         spec.ID,
					APIKey:     spec.APIKey,
					BaseURL:    spec.BaseURL,
					Model:      spec.Model,
					MaxTokens:  orDefault(spec.MaxTokens, 4096),
					UseAzure:   spec.UseAzure,
					APIVersion: spec.APIVersion,
				})
			}

		default:
			logging.Logger.Warn().Str("kind", string(spec.Kind)).Msg("unknown provider kind, skipping")
		}

		if err != nil {
			logging.Logger.Error().Err(err).Str("provider", spec.ID).Msg("failed to initialize provider")
			continue
		}
		if provider != nil {
			registry.Register(provider)
		}
	}

	if !configured[KindAnthropic] {
		if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
			provider, err := NewAnthropicProvider(ctx, &AnthropicConfig{
				ID:        "anthropic",
				APIKey:    apiKey,
				MaxTokens: 8192,
			})
			if err != nil {
				logging.Logger.Error().Err(err).Msg("failed to auto-register anthropic provider")
			} else {
				registry.Register(provider)
				logging.Logger.Debug().Msg("auto-registered anthropic provider from ANTHROPIC_API_KEY")
			}
		}
	}

	if !configured[KindOpenAI] {
		if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
			provider, err := NewOpenAIProvider(ctx, &OpenAIConfig{
				ID:        "openai",
				APIKey:    apiKey,
				MaxTokens: 4096,
			})
			if err != nil {
				logging.Logger.Error().Err(err).Msg("failed to auto-register openai provider")
			} else {
				registry.Register(provider)
				logging.Logger.Debug().Msg("auto-registered openai provider from OPENAI_API_KEY")
			}
		}
	}

	return registry, nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
