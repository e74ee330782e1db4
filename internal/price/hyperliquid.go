package price

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"spot-price-alerts/internal/types"
)

const (
	DefaultHyperliquidURL = "https://api.hyperliquid.xyz"
	candleInterval        = "1d"
	changeWindow          = 24 * time.Hour
)

type infoRequest struct {
	Type string      `json:"type"`
	Req  interface{} `json:"req,omitempty"`
}

type candleRequest struct {
	Coin      string `json:"coin"`
	Interval  string `json:"interval"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

type candle struct {
	Open  decimal.Decimal `json:"o"`
	Close decimal.Decimal `json:"c"`
}

// HyperliquidClient queries the public Hyperliquid info endpoint.
type HyperliquidClient struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func NewHyperliquidClient(baseURL string, timeout time.Duration) *HyperliquidClient {
	if baseURL == "" {
		baseURL = DefaultHyperliquidURL
	}
	return &HyperliquidClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// Fetch returns the mid price and the 24h change of coin. Failed lookups leave the field nil.
func (c *HyperliquidClient) Fetch(ctx context.Context, coin string) types.Observation {
	var obs types.Observation

	mid, err := c.Mid(ctx, coin)
	if err != nil {
		log.WithError(err).Errorf("Failed to fetch spot price for %s", coin)
	} else {
		obs.Price = mid
	}

	change, err := c.Change24h(ctx, coin)
	if err != nil {
		log.WithError(err).Errorf("Failed to fetch 24h change for %s", coin)
	} else {
		obs.ChangePercent24h = change
	}
	return obs
}

// Mid returns the current mid price of coin, or nil when the coin is not listed.
func (c *HyperliquidClient) Mid(ctx context.Context, coin string) (*float64, error) {
	var mids map[string]decimal.Decimal
	if err := c.post(ctx, infoRequest{Type: "allMids"}, &mids); err != nil {
		return nil, errors.Wrap(err, "allMids")
	}

	mid, ok := mids[coin]
	if !ok {
		log.Debugf("Coin %s not present in allMids", coin)
		return nil, nil
	}
	return types.Float(mid.InexactFloat64()), nil
}

// Change24h returns the percent change of the latest daily candle, or nil when none is usable.
func (c *HyperliquidClient) Change24h(ctx context.Context, coin string) (*float64, error) {
	now := c.now()
	req := infoRequest{
		Type: "candleSnapshot",
		Req: candleRequest{
			Coin:      coin,
			Interval:  candleInterval,
			StartTime: now.Add(-changeWindow).UnixMilli(),
			EndTime:   now.UnixMilli(),
		},
	}

	var candles []candle
	if err := c.post(ctx, req, &candles); err != nil {
		return nil, errors.Wrap(err, "candleSnapshot")
	}
	return candleChange(candles), nil
}

// candleChange is (close - open) / open * 100 of the last candle.
func candleChange(candles []candle) *float64 {
	if len(candles) == 0 {
		return nil
	}
	last := candles[len(candles)-1]
	if last.Open.IsZero() {
		return nil
	}
	change := last.Close.Sub(last.Open).Div(last.Open).Mul(decimal.NewFromInt(100))
	return types.Float(change.InexactFloat64())
}

func (c *HyperliquidClient) post(ctx context.Context, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
