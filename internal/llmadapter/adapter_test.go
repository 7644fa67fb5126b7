package llmadapter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketintel/engine/internal/domain"
)

type fakeProvider struct {
	id    ProviderID
	resps []json.RawMessage
	errs  []error
	calls int
}

func (f *fakeProvider) ID() ProviderID { return f.id }

func (f *fakeProvider) Invoke(_ context.Context, _ Request) (json.RawMessage, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.resps) {
		return f.resps[i], nil
	}
	return f.resps[len(f.resps)-1], nil
}

func schemaReq(fields ...string) Request {
	return Request{SystemPrompt: "sys", UserPrompt: "user", Schema: Schema{RequiredFields: fields}}
}

func TestAdapter_InvokeSucceedsOnFirstProvider(t *testing.T) {
	provider := &fakeProvider{id: ProviderA, resps: []json.RawMessage{[]byte(`{"probability":0.6}`)}}
	adapter := NewAdapter([]Provider{provider}, AdapterConfig{Timeout: time.Second})

	result, err := adapter.Invoke(context.Background(), schemaReq("probability"))
	require.NoError(t, err)
	assert.Equal(t, ProviderA, result.Provider)
	assert.Equal(t, 0.6, result.Decoded["probability"])
}

func TestAdapter_RetriesOnRateLimited(t *testing.T) {
	provider := &fakeProvider{
		id: ProviderA,
		errs: []error{
			domain.NewProviderError(domain.ProviderErrorRateLimited, "slow down"),
			nil,
		},
		resps: []json.RawMessage{nil, []byte(`{"probability":0.5}`)},
	}
	adapter := NewAdapter([]Provider{provider}, AdapterConfig{MaxRetries: 2, Timeout: time.Second})

	result, err := adapter.Invoke(context.Background(), schemaReq("probability"))
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
	assert.Equal(t, 0.5, result.Decoded["probability"])
}

func TestAdapter_FallsThroughOnValidationFailure(t *testing.T) {
	bad := &fakeProvider{id: ProviderA, resps: []json.RawMessage{[]byte(`{"other_field":1}`)}}
	good := &fakeProvider{id: ProviderB, resps: []json.RawMessage{[]byte(`{"probability":0.7}`)}}
	adapter := NewAdapter([]Provider{bad, good}, AdapterConfig{Timeout: time.Second})

	result, err := adapter.Invoke(context.Background(), schemaReq("probability"))
	require.NoError(t, err)
	assert.Equal(t, ProviderB, result.Provider)
	assert.Equal(t, 1, bad.calls)
}

func TestAdapter_AllProvidersExhaustedReturnsError(t *testing.T) {
	a := &fakeProvider{id: ProviderA, errs: []error{domain.NewProviderError(domain.ProviderErrorValidation, "bad")}}
	b := &fakeProvider{id: ProviderB, errs: []error{domain.NewProviderError(domain.ProviderErrorValidation, "bad too")}}
	adapter := NewAdapter([]Provider{a, b}, AdapterConfig{Timeout: time.Second})

	_, err := adapter.Invoke(context.Background(), schemaReq("probability"))
	require.Error(t, err)
}

func TestSchema_ValidateMissingField(t *testing.T) {
	s := Schema{RequiredFields: []string{"probability", "rationale"}}
	err := s.Validate(map[string]any{"probability": 0.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rationale")
}
