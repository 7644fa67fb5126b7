package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketintel/engine/internal/domain"
	"github.com/marketintel/engine/internal/marketdata"
)

func TestIngest_NormalizesRawMarket(t *testing.T) {
	now := time.Now()
	raw := &marketdata.RawMarket{
		ConditionID: "0xabc",
		MarketID:    "m1",
		Question:    "Will X happen?",
		Resolution:  "Resolves YES if the Senate passes the bill by year end.",
		Category:    "policy",
		ExpiryTime:  now.Add(48 * time.Hour),
		YesPrice:    0.62,
		BestBid:     0.60,
		BestAsk:     0.64,
		Volume24h:   50000,
		LiquidityUSD: 200000,
		RecentPrices: []marketdata.PricePoint{
			{Timestamp: now.Add(-2 * time.Hour), Price: 0.60},
			{Timestamp: now.Add(-1 * time.Hour), Price: 0.61},
			{Timestamp: now, Price: 0.62},
		},
		Catalysts: []marketdata.CatalystEvent{
			{Event: "Senate floor vote", Timestamp: now.Add(36 * time.Hour)},
		},
	}
	client := marketdata.NewStubClient(map[string]*marketdata.RawMarket{"0xabc": raw})

	mbd, err := Ingest(context.Background(), client, "0xabc", now)
	require.NoError(t, err)
	assert.Equal(t, domain.EventTypePolicy, mbd.EventType)
	assert.InDelta(t, 0.62, mbd.CurrentProbability, 1e-9)
	assert.InDelta(t, 0.04, mbd.BidAskSpread, 1e-9)
	assert.Equal(t, domain.VolatilityLow, mbd.VolatilityRegime)
	assert.Greater(t, mbd.LiquidityScore, 0.0)
	assert.Empty(t, mbd.AmbiguityFlags)
	require.Len(t, mbd.KeyCatalysts, 1)
	assert.Equal(t, "Senate floor vote", mbd.KeyCatalysts[0].Event)
}

func TestIngest_FlagsAmbiguousResolutionCriteria(t *testing.T) {
	now := time.Now()
	raw := &marketdata.RawMarket{
		ConditionID: "0xdef",
		Resolution:  "Resolution is at the discretion of the committee and TBD.",
		ExpiryTime:  now.Add(24 * time.Hour),
		YesPrice:    0.5,
	}
	client := marketdata.NewStubClient(map[string]*marketdata.RawMarket{"0xdef": raw})

	mbd, err := Ingest(context.Background(), client, "0xdef", now)
	require.NoError(t, err)
	assert.NotEmpty(t, mbd.AmbiguityFlags)
}

func TestIngest_ErrorsWhenMarketNotFound(t *testing.T) {
	client := marketdata.NewStubClient(nil)
	_, err := Ingest(context.Background(), client, "0xmissing", time.Now())
	require.Error(t, err)
	var failed domain.IngestionFailed
	require.ErrorAs(t, err, &failed)
}

func TestIngest_ErrorsOnInvalidProbability(t *testing.T) {
	now := time.Now()
	raw := &marketdata.RawMarket{
		ConditionID: "0xbad",
		ExpiryTime:  now.Add(24 * time.Hour),
		YesPrice:    1.5,
	}
	client := marketdata.NewStubClient(map[string]*marketdata.RawMarket{"0xbad": raw})

	_, err := Ingest(context.Background(), client, "0xbad", now)
	require.Error(t, err)
}
