package engine

import (
	"context"

	"github.com/marketintel/engine/internal/agent"
	"github.com/marketintel/engine/internal/config"
	"github.com/marketintel/engine/internal/llmadapter"
	"github.com/marketintel/engine/internal/secrets"
)

// BuildAdapters assembles the LLM adapters an Engine's agent.Registry
// needs. In single-provider mode it returns one shared Adapter and a
// nil perKind map. In multi-provider mode it builds one no-fallback
// Adapter per configured provider and
// round-robins them across agent.AllKinds, so concurrent specialists
// reason with different underlying models. The returned default adapter
// in multi-provider mode is the full ordered-fallback Adapter, used for
// the risk-philosophy perspectives and any kind the round-robin didn't
// reach.
func BuildAdapters(ctx context.Context, cfg config.LLMConfig, resolver secrets.Resolver) (*llmadapter.Adapter, map[agent.Kind]*llmadapter.Adapter, error) {
	defaultAdapter, err := llmadapter.BuildAdapter(ctx, cfg, resolver)
	if err != nil {
		return nil, nil, err
	}

	if !cfg.MultiProvider() {
		return defaultAdapter, nil, nil
	}

	perProvider, err := llmadapter.BuildSingleProviderAdapters(ctx, cfg, resolver)
	if err != nil {
		return nil, nil, err
	}
	if len(perProvider) == 0 {
		return defaultAdapter, nil, nil
	}

	providerIDs := make([]llmadapter.ProviderID, 0, len(perProvider))
	for _, id := range []llmadapter.ProviderID{llmadapter.ProviderA, llmadapter.ProviderB, llmadapter.ProviderC, llmadapter.ProviderD} {
		if _, ok := perProvider[id]; ok {
			providerIDs = append(providerIDs, id)
		}
	}

	perKind := make(map[agent.Kind]*llmadapter.Adapter, len(agent.AllKinds))
	for i, kind := range agent.AllKinds {
		id := providerIDs[i%len(providerIDs)]
		perKind[kind] = perProvider[id]
	}

	return defaultAdapter, perKind, nil
}
