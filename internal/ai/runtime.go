package ai

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// Runtime is a chat backend the planner can call.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider names accepted by --provider and default_provider.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// RuntimeConfig is the provider-neutral subset of the user config a backend
// needs. Zero durations and counts select each client's defaults.
type RuntimeConfig struct {
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	APIKey string // openrouter
	Host   string // ollama
}

func (c RuntimeConfig) options() []ClientOption {
	return []ClientOption{
		WithHTTPTimeout(c.HTTPTimeout),
		WithRetries(c.RetryMax, c.BaseDelay, c.MaxDelay),
	}
}

// RuntimeFactory builds a Runtime from RuntimeConfig.
type RuntimeFactory func(RuntimeConfig) Runtime

var (
	registryMu sync.RWMutex
	registry   = map[string]RuntimeFactory{
		ProviderOpenRouter: func(c RuntimeConfig) Runtime { return NewOpenRouterClient(c.APIKey, c.options()...) },
		ProviderOllama:     func(c RuntimeConfig) Runtime { return NewOllamaClient(c.Host, c.options()...) },
	}
)

// RegisterRuntime adds or replaces a provider.
func RegisterRuntime(name string, f RuntimeFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// NewRuntime builds the Runtime registered under provider.
func NewRuntime(provider string, cfg RuntimeConfig) (Runtime, error) {
	registryMu.RLock()
	f, ok := registry[provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (known: %v)", provider, Providers())
	}
	return f(cfg), nil
}

// Providers lists registered provider names in order.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return slices.Sorted(maps.Keys(registry))
}
