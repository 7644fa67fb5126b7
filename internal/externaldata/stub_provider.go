package externaldata

import "context"

// StubProvider is a placeholder Provider for local development and
// tests, standing in for the out-of-scope news/polling/social
// collaborator APIs. It returns an empty, non-stale result.
type StubProvider struct{}

func (StubProvider) Fetch(_ context.Context, _ Params) (*FetchResult, error) {
	return &FetchResult{Items: nil}, nil
}

// DefaultProviders returns a StubProvider for every source, suitable
// for wiring a Service before real collaborator clients are available.
func DefaultProviders() map[Source]Provider {
	return map[Source]Provider{
		SourceNews:    StubProvider{},
		SourcePolling: StubProvider{},
		SourceSocial:  StubProvider{},
	}
}
