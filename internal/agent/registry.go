package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/marketintel/engine/internal/domain"
	"github.com/marketintel/engine/internal/llmadapter"
)

// promptSpecialist is the concrete Specialist every Kind produces: the
// shared BaseSpecialist call mechanics plus this kind's prompt framing.
type promptSpecialist struct {
	BaseSpecialist
	build PromptBuilder
}

func (p promptSpecialist) Analyze(ctx context.Context, input Input) (domain.AgentSignal, error) {
	return p.invoke(ctx, p.build, input)
}

// Registry constructs specialists on demand, one adapter per provider
// assignment (single-provider mode reuses the same adapter for every
// kind; multi-provider mode may pass a different adapter per kind —
// the caller decides, this registry just builds what it's given).
type Registry struct {
	adapters map[Kind]*llmadapter.Adapter
}

// NewRegistry builds a registry. defaultAdapter is used for any kind
// not present in perKind, so single-provider mode can pass a nil
// perKind map and defaultAdapter alone.
func NewRegistry(defaultAdapter *llmadapter.Adapter, perKind map[Kind]*llmadapter.Adapter) *Registry {
	adapters := make(map[Kind]*llmadapter.Adapter, len(AllKinds))
	for _, k := range AllKinds {
		if a, ok := perKind[k]; ok {
			adapters[k] = a
		} else {
			adapters[k] = defaultAdapter
		}
	}
	return &Registry{adapters: adapters}
}

// Build constructs the Specialist for one kind.
func (r *Registry) Build(kind Kind) (Specialist, error) {
	adapter, ok := r.adapters[kind]
	if !ok || adapter == nil {
		return nil, fmt.Errorf("agent: no adapter configured for kind %s", kind)
	}
	return promptSpecialist{
		BaseSpecialist: NewBaseSpecialist(string(kind), adapter),
		build:          buildPrompt(kind),
	}, nil
}

// RunResult pairs one kind's outcome with its signal or error, so the
// caller (internal/engine's agent-fanout node) can build both
// AgentSignal and AgentErrorRecord lists without re-deriving kind names.
type RunResult struct {
	Kind     Kind
	Signal   domain.AgentSignal
	Err      error
	Duration time.Duration
}

// RunAll fans every active kind out concurrently and waits for all of
// them to settle — one agent's failure never cancels its siblings, the
// same all-settled semantics the teacher's agent fan-out lacked
// (golang.org/x/sync/errgroup is present in the teacher's go.mod but
// unused anywhere in its codebase; this is where it gets wired in).
func (r *Registry) RunAll(ctx context.Context, activeKinds []Kind, input Input) []RunResult {
	results := make([]RunResult, len(activeKinds))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(len(activeKinds))

	for i, kind := range activeKinds {
		i, kind := i, kind
		group.Go(func() error {
			start := time.Now()
			specialist, err := r.Build(kind)
			if err != nil {
				results[i] = RunResult{Kind: kind, Err: err, Duration: time.Since(start)}
				return nil
			}
			signal, err := specialist.Analyze(gctx, input)
			results[i] = RunResult{Kind: kind, Signal: signal, Err: err, Duration: time.Since(start)}
			if err != nil {
				log.Warn().Err(err).Str("kind", string(kind)).Msg("specialist agent failed")
			}
			return nil
		})
	}

	// group.Wait()'s error is always nil by construction above: every
	// goroutine records its outcome into results and returns nil, so a
	// per-agent failure never aborts the others via errgroup's
	// cancel-on-first-error behavior.
	_ = group.Wait()
	return results
}
