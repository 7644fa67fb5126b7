package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// HTTPClient is a REST client for the Polymarket-shaped market-data
// collaborator, grounded on the teacher's CoinGeckoClient: a thin
// wrapper over net/http with a bounded timeout and structured logging
// at each call site.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient builds a client against baseURL (e.g. the Polymarket
// gamma API), with a default 15s per-call timeout.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type marketResponse struct {
	ConditionID  string             `json:"condition_id"`
	MarketID     string             `json:"market_id"`
	Question     string             `json:"question"`
	Resolution   string             `json:"resolution_criteria"`
	Category     string             `json:"category"`
	EndDate      time.Time          `json:"end_date"`
	LastPrice    float64            `json:"last_trade_price"`
	BestBid      float64            `json:"best_bid"`
	BestAsk      float64            `json:"best_ask"`
	Volume24h    float64            `json:"volume_24h"`
	LiquidityUSD float64            `json:"liquidity"`
	Catalysts    []catalystResponse `json:"catalysts"`
}

type catalystResponse struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// GetMarket fetches one market by condition_id.
func (c *HTTPClient) GetMarket(ctx context.Context, conditionID string) (*RawMarket, error) {
	log.Debug().Str("condition_id", conditionID).Msg("fetching market from market-data collaborator")

	reqURL := fmt.Sprintf("%s/markets/%s", c.baseURL, conditionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build market request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("market-data API returned status %d: %s", resp.StatusCode, string(body))
	}

	var raw marketResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode market response: %w", err)
	}

	catalysts := make([]CatalystEvent, 0, len(raw.Catalysts))
	for _, c := range raw.Catalysts {
		catalysts = append(catalysts, CatalystEvent{Event: c.Event, Timestamp: c.Timestamp})
	}

	return &RawMarket{
		ConditionID:  raw.ConditionID,
		MarketID:     raw.MarketID,
		Question:     raw.Question,
		Resolution:   raw.Resolution,
		Category:     raw.Category,
		ExpiryTime:   raw.EndDate,
		YesPrice:     raw.LastPrice,
		BestBid:      raw.BestBid,
		BestAsk:      raw.BestAsk,
		Volume24h:    raw.Volume24h,
		LiquidityUSD: raw.LiquidityUSD,
		Catalysts:    catalysts,
	}, nil
}
