package marketdata

import "context"

// StubClient is an in-memory Client keyed by condition_id, used by
// engine tests and local runs without a live market-data collaborator.
type StubClient struct {
	Markets map[string]*RawMarket
}

// NewStubClient returns a client pre-seeded with the given markets.
func NewStubClient(markets map[string]*RawMarket) *StubClient {
	return &StubClient{Markets: markets}
}

func (s *StubClient) GetMarket(_ context.Context, conditionID string) (*RawMarket, error) {
	market, ok := s.Markets[conditionID]
	if !ok {
		return nil, ErrNotFound
	}
	return market, nil
}
