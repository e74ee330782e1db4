package price

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"spot-price-alerts/internal/types"
)

const DefaultHyperliquidWSURL = "wss://api.hyperliquid.xyz/ws"

type wsSubscribe struct {
	Method       string            `json:"method"`
	Subscription map[string]string `json:"subscription"`
}

type wsFrame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type wsMids struct {
	Mids map[string]decimal.Decimal `json:"mids"`
}

// StreamSource reads the price from one allMids websocket frame per cycle.
// The 24h change still comes from the HTTP candle snapshot.
type StreamSource struct {
	url     string
	timeout time.Duration
	dialer  *websocket.Dialer
	candles *HyperliquidClient
}

func NewStreamSource(wsURL string, timeout time.Duration, candles *HyperliquidClient) *StreamSource {
	if wsURL == "" {
		wsURL = DefaultHyperliquidWSURL
	}
	return &StreamSource{
		url:     wsURL,
		timeout: timeout,
		dialer:  &websocket.Dialer{HandshakeTimeout: timeout},
		candles: candles,
	}
}

func (s *StreamSource) Fetch(ctx context.Context, coin string) types.Observation {
	var obs types.Observation

	mid, err := s.Mid(ctx, coin)
	if err != nil {
		log.WithError(err).Errorf("Failed to read streamed price for %s", coin)
	} else {
		obs.Price = mid
	}

	change, err := s.candles.Change24h(ctx, coin)
	if err != nil {
		log.WithError(err).Errorf("Failed to fetch 24h change for %s", coin)
	} else {
		obs.ChangePercent24h = change
	}
	return obs
}

// Mid subscribes to allMids and returns coin's mid from the first allMids frame.
func (s *StreamSource) Mid(ctx context.Context, coin string) (*float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	sub := wsSubscribe{Method: "subscribe", Subscription: map[string]string{"type": "allMids"}}
	if err := conn.WriteJSON(sub); err != nil {
		return nil, errors.Wrap(err, "subscribe")
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return nil, errors.Wrap(err, "read")
		}

		var frame wsFrame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Channel != "allMids" {
			// subscriptionResponse and pongs
			continue
		}

		var data wsMids
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return nil, errors.Wrap(err, "decode allMids frame")
		}
		mid, ok := data.Mids[coin]
		if !ok {
			return nil, nil
		}
		return types.Float(mid.InexactFloat64()), nil
	}
}
