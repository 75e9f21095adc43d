package engine

import (
	"fmt"
	"sync"

	"github.com/germanamz/babycode/pkg/modeladapter"
	"github.com/germanamz/babycode/pkg/providers/anthropic"
	"github.com/germanamz/babycode/pkg/providers/gemini"
	"github.com/germanamz/babycode/pkg/providers/grok"
	"github.com/germanamz/babycode/pkg/providers/openai"
)

// ProviderFactory creates a Completer from a ProviderConfig.
type ProviderFactory func(cfg ProviderConfig) (modeladapter.Completer, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories["anthropic"] = newAnthropic
		factories["openai"] = newOpenAI
		factories["gemini"] = newGemini
		factories["grok"] = newGrok
	})
}

// RegisterProvider registers a custom provider factory under the given kind.
// It can be called before New to extend the engine with additional providers.
func RegisterProvider(kind string, factory ProviderFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[kind] = factory
}

// getFactory returns the factory for the given kind.
func getFactory(kind string) (ProviderFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[kind]
	return f, ok
}

func newAnthropic(cfg ProviderConfig) (modeladapter.Completer, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropic.DefaultBaseURL
	}

	a := anthropic.New(baseURL, cfg.APIKey, cfg.Model)
	a.MaxTokens = cfg.MaxTokens
	a.Temperature = cfg.Temperature
	a.Stream = cfg.Stream

	return a, nil
}

func newOpenAI(cfg ProviderConfig) (modeladapter.Completer, error) {
	a := openai.New(cfg.BaseURL, cfg.APIKey, cfg.Model, nil)
	a.MaxTokens = cfg.MaxTokens
	a.Temperature = cfg.Temperature
	a.Stream = cfg.Stream

	return a, nil
}

func newGemini(cfg ProviderConfig) (modeladapter.Completer, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = gemini.DefaultBaseURL
	}

	a := gemini.New(baseURL, cfg.APIKey, cfg.Model)
	a.MaxTokens = cfg.MaxTokens
	a.Temperature = cfg.Temperature

	return a, nil
}

func newGrok(cfg ProviderConfig) (modeladapter.Completer, error) {
	a := grok.New(cfg.BaseURL, cfg.APIKey, cfg.Model, nil)
	a.MaxTokens = cfg.MaxTokens
	a.Temperature = cfg.Temperature

	return a, nil
}

// buildCompleter creates a Completer from a ProviderConfig using the registered
// factory for its Kind. The completer is wrapped with a RateLimitedCompleter,
// which applies rate_limit and the provider's reported quota, and then, unless
// retries are disabled with a negative max_retries, with a RetryCompleter.
func buildCompleter(cfg ProviderConfig) (modeladapter.Completer, error) {
	factory, ok := getFactory(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("engine: unknown provider kind %q", cfg.Kind)
	}

	c, err := factory(cfg)
	if err != nil {
		return nil, err
	}

	c = modeladapter.NewRateLimitedCompleter(c, modeladapter.RateLimits{
		InputTPM:  cfg.RateLimit.InputTPM,
		OutputTPM: cfg.RateLimit.OutputTPM,
		RPM:       cfg.RateLimit.RPM,
	})

	if cfg.Retry.MaxRetries < 0 {
		return c, nil
	}

	baseDelay, err := cfg.Retry.baseDelay()
	if err != nil {
		return nil, err
	}

	return modeladapter.NewRetryCompleter(c, modeladapter.RetryOpts{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  baseDelay,
	}), nil
}
