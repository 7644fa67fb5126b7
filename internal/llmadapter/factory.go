package llmadapter

import (
	"context"
	"fmt"
	"sort"

	"github.com/marketintel/engine/internal/config"
	"github.com/marketintel/engine/internal/secrets"
)

// providerOrder fixes the fallback order used whenever config doesn't
// pin a single provider: A is preferred, D is the last resort.
var providerOrder = []ProviderID{ProviderA, ProviderB, ProviderC, ProviderD}

// BuildAdapter wires configured providers into an Adapter. In
// single-provider mode (cfg.SingleProvider is one of A/B/C/D), the
// Adapter has exactly that one provider and no fallback. In
// multi-provider mode ("none" or empty), every configured provider is
// wired in a fixed order so Invoke falls through on failure.
func BuildAdapter(ctx context.Context, cfg config.LLMConfig, resolver secrets.Resolver) (*Adapter, error) {
	providers, err := buildProviders(ctx, cfg, resolver)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("llmadapter: no providers configured")
	}
	return NewAdapter(providers, AdapterConfig{MaxRetries: cfg.MaxRetries, Timeout: cfg.Timeout()}), nil
}

func buildProviders(ctx context.Context, cfg config.LLMConfig, resolver secrets.Resolver) ([]Provider, error) {
	if !cfg.MultiProvider() {
		id := ProviderID(cfg.SingleProvider)
		provider, err := buildOneProvider(ctx, id, cfg, resolver)
		if err != nil {
			return nil, err
		}
		return []Provider{provider}, nil
	}

	// Multi-provider mode: wire every provider with a config entry, in
	// the fixed preference order, as one fallback chain. Per-agent
	// assignment uses BuildSingleProviderAdapters instead.
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	var providers []Provider
	for _, id := range providerOrder {
		if _, ok := cfg.Providers[string(id)]; !ok {
			continue
		}
		provider, err := buildOneProvider(ctx, id, cfg, resolver)
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}
	return providers, nil
}

// BuildSingleProviderAdapters wires one no-fallback Adapter per
// configured provider, for multi-provider mode: internal/engine assigns
// a distinct one of these to each specialist kind (round-robin) so
// concurrent agents reason with different underlying models, per spec
// §4.4's diversity-of-reasoning mode.
func BuildSingleProviderAdapters(ctx context.Context, cfg config.LLMConfig, resolver secrets.Resolver) (map[ProviderID]*Adapter, error) {
	adapters := make(map[ProviderID]*Adapter, len(cfg.Providers))
	for _, id := range providerOrder {
		if _, ok := cfg.Providers[string(id)]; !ok {
			continue
		}
		provider, err := buildOneProvider(ctx, id, cfg, resolver)
		if err != nil {
			return nil, err
		}
		adapters[id] = NewAdapter([]Provider{provider}, AdapterConfig{MaxRetries: cfg.MaxRetries, Timeout: cfg.Timeout()})
	}
	return adapters, nil
}

func buildOneProvider(ctx context.Context, id ProviderID, cfg config.LLMConfig, resolver secrets.Resolver) (Provider, error) {
	providerCfg, ok := cfg.Providers[string(id)]
	if !ok {
		return nil, fmt.Errorf("llmadapter: provider %s has no configuration", id)
	}

	apiKey := providerCfg.APIKey
	if apiKey == "" {
		resolved, err := resolver.Resolve(ctx, fmt.Sprintf("llm/provider_%s/api_key", string(id)))
		if err != nil {
			return nil, fmt.Errorf("resolve api key for provider %s: %w", id, err)
		}
		apiKey = resolved
	}

	return NewHTTPProvider(id, HTTPProviderConfig{
		Endpoint:    providerCfg.Endpoint,
		APIKey:      apiKey,
		Model:       providerCfg.DefaultModel,
		Temperature: providerCfg.Temperature,
		MaxTokens:   providerCfg.MaxTokens,
		Timeout:     cfg.Timeout(),
	}), nil
}
