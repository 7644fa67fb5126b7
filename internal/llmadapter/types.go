// Package llmadapter is the uniform LLM call surface every specialist
// agent goes through: invoke(prompt, schema) -> structured_object |
// error{kind, retryable} (spec §6). It owns structured-output
// validation, per-call timeout, retry on RATE_LIMITED/TIMEOUT only,
// ordered provider fallback, and cost attribution.
package llmadapter

import (
	"context"
	"encoding/json"
)

// ProviderID names one of the four configured LLM providers.
type ProviderID string

const (
	ProviderA ProviderID = "A"
	ProviderB ProviderID = "B"
	ProviderC ProviderID = "C"
	ProviderD ProviderID = "D"
)

// Request is one structured-output LLM call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Schema       Schema
}

// Schema is a lightweight structured-output contract: the set of fields
// a conformant JSON object must contain, plus an optional deeper
// consistency check. This is deliberately not a full JSON-Schema engine
// — see DESIGN.md for why a hand-rolled required-field check was chosen
// over a third-party validator here.
type Schema struct {
	RequiredFields []string

	// Semantic, if set, runs after RequiredFields passes and rejects a
	// structured output that is shape-conformant but internally
	// inconsistent (e.g. a direction field that contradicts the
	// probability it was derived from). A Semantic failure is treated
	// exactly like a missing field: not retried against the same
	// provider, falls through to the next one.
	Semantic func(obj map[string]any) error
}

// Validate checks that every required field is present and non-null in
// the decoded object, then runs Semantic if one is configured.
func (s Schema) Validate(obj map[string]any) error {
	for _, field := range s.RequiredFields {
		val, ok := obj[field]
		if !ok || val == nil {
			return &SchemaViolation{Field: field}
		}
	}
	if s.Semantic != nil {
		return s.Semantic(obj)
	}
	return nil
}

// SchemaViolation reports a missing or null required field.
type SchemaViolation struct {
	Field string
}

func (e *SchemaViolation) Error() string {
	return "missing required field: " + e.Field
}

// Provider is a single LLM backend: one HTTP call, no retry/fallback
// logic of its own (that's the Adapter's job).
type Provider interface {
	ID() ProviderID
	Invoke(ctx context.Context, req Request) (json.RawMessage, error)
}

// Result is a validated structured-output payload plus the provider
// that produced it, for cost/performance attribution.
type Result struct {
	Raw      json.RawMessage
	Decoded  map[string]any
	Provider ProviderID
}
