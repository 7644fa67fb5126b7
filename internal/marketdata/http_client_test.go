package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_GetMarket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(marketResponse{
			ConditionID: "0xabc",
			MarketID:    "will-x-happen",
			Question:    "Will X happen?",
			EndDate:     time.Now().Add(48 * time.Hour),
			LastPrice:   0.62,
			BestBid:     0.61,
			BestAsk:     0.63,
			Volume24h:   15000,
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "")
	market, err := client.GetMarket(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", market.ConditionID)
	assert.Equal(t, 0.62, market.YesPrice)
}

func TestHTTPClient_GetMarketNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "")
	_, err := client.GetMarket(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStubClient_GetMarket(t *testing.T) {
	stub := NewStubClient(map[string]*RawMarket{
		"0xabc": {ConditionID: "0xabc", Question: "Will X happen?"},
	})
	market, err := stub.GetMarket(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "Will X happen?", market.Question)

	_, err = stub.GetMarket(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
