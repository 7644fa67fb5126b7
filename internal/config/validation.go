package config

import (
	"fmt"
	"strings"
)

// ValidationError is one field-level configuration problem.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors collects every problem found by Validate so a single
// run reports all of them, not just the first.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d error(s):\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// Validate checks the configuration invariants the engine depends on:
// sane thresholds, a resolvable provider mode, and a non-zero fan-out
// timeout. It does not verify external connectivity.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Consensus.MinEdgeThreshold <= 0 || c.Consensus.MinEdgeThreshold >= 1 {
		errs = append(errs, ValidationError{"consensus.min_edge_threshold", "must be in (0,1)"})
	}
	if c.Consensus.HighDisagreementThreshold <= 0 || c.Consensus.HighDisagreementThreshold >= 1 {
		errs = append(errs, ValidationError{"consensus.high_disagreement_threshold", "must be in (0,1)"})
	}
	if c.Consensus.FailThreshold <= c.Consensus.HighDisagreementThreshold {
		errs = append(errs, ValidationError{"consensus.fail_threshold", "must exceed high_disagreement_threshold"})
	}

	if c.Agents.MinAgentsRequired < 1 {
		errs = append(errs, ValidationError{"agents.min_agents_required", "must be at least 1"})
	}
	if c.Agents.TimeoutMs <= 0 {
		errs = append(errs, ValidationError{"agents.timeout_ms", "must be positive"})
	}

	if !c.LLM.MultiProvider() {
		if _, ok := c.LLM.Providers[c.LLM.SingleProvider]; !ok {
			errs = append(errs, ValidationError{
				Field:   "llm.single_provider",
				Message: fmt.Sprintf("provider %q has no matching llm.providers entry", c.LLM.SingleProvider),
			})
		}
	}

	if c.SignalFusion.ConflictThreshold <= 0 || c.SignalFusion.ConflictThreshold >= 1 {
		errs = append(errs, ValidationError{"signal_fusion.conflict_threshold", "must be in (0,1)"})
	}

	if c.CostOptimization.MaxCostPerAnalysis <= 0 {
		errs = append(errs, ValidationError{"cost_optimization.max_cost_per_analysis", "must be positive"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
