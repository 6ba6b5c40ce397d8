package llm

import (
	"fmt"

	"another-i/model"
	"another-i/utils"
)

// ProviderFactory builds a vendor client for user settings
type ProviderFactory interface {
	New(settings model.AISettings) (Provider, error)
}

// Factory builds providers from user settings layered over server-side
// vendor defaults (base URL, timeout, token limits, proxy).
type Factory struct {
	Defaults map[model.Provider]Config
}

// NewFactory creates a factory with the given per-vendor defaults
func NewFactory(defaults map[model.Provider]Config) *Factory {
	if defaults == nil {
		defaults = map[model.Provider]Config{}
	}
	return &Factory{Defaults: defaults}
}

// New creates the provider named by settings. Settings without an API key
// are rejected before any request is made.
func (f *Factory) New(settings model.AISettings) (Provider, error) {
	settings = settings.Normalize()

	config := f.Defaults[settings.Provider]
	config.APIKey = settings.APIKey
	if settings.Model != "" {
		config.Model = settings.Model
	}

	var (
		p   Provider
		err error
	)
	switch settings.Provider {
	case model.ProviderOpenAI:
		p, err = NewOpenAIProvider(config)
	case model.ProviderAnthropic:
		p, err = NewClaudeProvider(config)
	case model.ProviderGemini:
		p, err = NewGeminiProvider(config)
	default:
		return nil, fmt.Errorf("unsupported provider %q", settings.Provider)
	}
	if err != nil {
		return nil, err
	}
	if err := p.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("invalid %s configuration: %w", settings.Provider, err)
	}
	return p, nil
}

// DefaultsFromConfig turns the per-vendor sections of the app config into
// factory defaults. Keys that are not supported vendors are ignored.
func DefaultsFromConfig(cfg *utils.Config) map[model.Provider]Config {
	defaults := map[model.Provider]Config{}
	if cfg == nil {
		return defaults
	}

	proxyURL := ""
	if cfg.Proxy.Enabled {
		proxyURL = cfg.Proxy.URL
	}
	for name, p := range cfg.LLMProviders {
		provider := model.AISettings{Provider: model.Provider(name)}.Normalize().Provider
		if !provider.Valid() {
			continue
		}
		defaults[provider] = Config{
			ProviderName: p.DisplayName,
			BaseURL:      p.BaseURL,
			ProxyURL:     proxyURL,
			Timeout:      p.Timeout,
			MaxTokens:    p.MaxTokens,
			Temperature:  p.Temperature,
		}
	}
	return defaults
}
