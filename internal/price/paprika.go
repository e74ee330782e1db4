package price

import (
	"context"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	log "github.com/sirupsen/logrus"

	"spot-price-alerts/internal/types"
)

type tickerGetter interface {
	GetByID(coinID string, options *coinpaprika.TickersOptions) (*coinpaprika.Ticker, error)
}

type clientTickers struct {
	client *coinpaprika.Client
}

func (c clientTickers) GetByID(coinID string, options *coinpaprika.TickersOptions) (*coinpaprika.Ticker, error) {
	return c.client.Tickers.GetByID(coinID, options)
}

// PaprikaSource reads the USD quote of a coinpaprika coin id.
type PaprikaSource struct {
	tickers tickerGetter
}

// NewPaprikaSource uses the pro API when apiProKey is set.
func NewPaprikaSource(apiProKey string) *PaprikaSource {
	var client *coinpaprika.Client
	if apiProKey != "" {
		client = coinpaprika.NewClient(nil, coinpaprika.WithAPIKey(apiProKey))
	} else {
		client = coinpaprika.NewClient(nil)
	}
	return &PaprikaSource{tickers: clientTickers{client: client}}
}

// Fetch ignores ctx; the coinpaprika client has no context support.
func (s *PaprikaSource) Fetch(ctx context.Context, coinID string) types.Observation {
	ticker, err := s.tickers.GetByID(coinID, &coinpaprika.TickersOptions{Quotes: "USD"})
	if err != nil {
		log.WithError(err).Errorf("Failed to fetch ticker for %s", coinID)
		return types.Observation{}
	}
	return tickerObservation(ticker)
}

func tickerObservation(ticker *coinpaprika.Ticker) types.Observation {
	if ticker == nil {
		return types.Observation{}
	}
	usd, ok := ticker.Quotes["USD"]
	if !ok {
		return types.Observation{}
	}
	return types.Observation{Price: usd.Price, ChangePercent24h: usd.PercentChange24h}
}
