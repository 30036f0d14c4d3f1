package exchange

import (
	"context"
	"fmt"
	"net/url"

	"github.com/suwandre/fundarb/internal/models"
)

const bybitBaseURL = "https://api.bybit.com"

type BybitAdapter struct {
	rest *restClient
}

type bybitInstrument struct {
	Symbol       string `json:"symbol"`
	ContractType string `json:"contractType"` // LinearPerpetual, LinearFutures
	Status       string `json:"status"`
	BaseCoin     string `json:"baseCoin"`
	QuoteCoin    string `json:"quoteCoin"`
	SettleCoin   string `json:"settleCoin"`
}

type bybitTicker struct {
	Symbol          string `json:"symbol"`
	LastPrice       string `json:"lastPrice"`
	Turnover24h     string `json:"turnover24h"` // quote volume
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"` // Unix ms string
}

func NewBybitAdapter(opts Options) *BybitAdapter {
	return &BybitAdapter{
		rest: newRestClient("bybit", opts.baseURL(bybitBaseURL), opts),
	}
}

func (b *BybitAdapter) Name() string {
	return "bybit"
}

// Walks the cursor-paged linear instrument list.
func (b *BybitAdapter) LoadMarkets(ctx context.Context) ([]models.Market, error) {
	var markets []models.Market
	cursor := ""

	for {
		q := url.Values{}
		q.Set("category", "linear")
		q.Set("limit", "1000")
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var raw struct {
			RetCode int    `json:"retCode"`
			RetMsg  string `json:"retMsg"`
			Result  struct {
				List           []bybitInstrument `json:"list"`
				NextPageCursor string            `json:"nextPageCursor"`
			} `json:"result"`
		}

		if err := b.rest.getJSON(ctx, "/v5/market/instruments-info?"+q.Encode(), &raw); err != nil {
			return nil, err
		}
		if raw.RetCode != 0 {
			return nil, fmt.Errorf("bybit API error %d: %s: %w", raw.RetCode, raw.RetMsg, ErrUnavailable)
		}

		for _, inst := range raw.Result.List {
			markets = append(markets, models.Market{
				Instrument: models.NewInstrument(inst.BaseCoin, inst.QuoteCoin, inst.SettleCoin),
				ID:         inst.Symbol,
				Swap:       inst.ContractType == "LinearPerpetual",
				Active:     inst.Status == "Trading",
			})
		}

		if raw.Result.NextPageCursor == "" || raw.Result.NextPageCursor == cursor {
			return markets, nil
		}
		cursor = raw.Result.NextPageCursor
	}
}

func (b *BybitAdapter) FetchTicker(ctx context.Context, inst models.Instrument) (*models.Ticker, error) {
	ticker, err := b.fetchTicker(ctx, inst)
	if err != nil {
		return nil, err
	}

	last, err := parseNumber(ticker.LastPrice)
	if err != nil {
		return nil, fmt.Errorf("bybit ticker: %w", err)
	}
	volume, err := parseNumber(ticker.Turnover24h)
	if err != nil {
		return nil, fmt.Errorf("bybit ticker: %w", err)
	}

	return &models.Ticker{
		Exchange:    "bybit",
		Symbol:      inst.Symbol,
		Last:        last,
		QuoteVolume: volume,
	}, nil
}

func (b *BybitAdapter) FetchFundingRate(ctx context.Context, inst models.Instrument) (*models.FundingRate, error) {
	ticker, err := b.fetchTicker(ctx, inst)
	if err != nil {
		return nil, err
	}

	rate, err := parseNumber(ticker.FundingRate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse funding rate: %w", err)
	}

	return &models.FundingRate{
		Exchange:    "bybit",
		Symbol:      inst.Symbol,
		Rate:        rate,
		NextFunding: parseMillis(ticker.NextFundingTime),
	}, nil
}

func (b *BybitAdapter) Close() error {
	return b.rest.close()
}

func (b *BybitAdapter) fetchTicker(ctx context.Context, inst models.Instrument) (*bybitTicker, error) {
	var raw struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []bybitTicker `json:"list"`
		} `json:"result"`
	}

	path := "/v5/market/tickers?category=linear&symbol=" + url.QueryEscape(inst.Base+inst.Quote)
	if err := b.rest.getJSON(ctx, path, &raw); err != nil {
		return nil, err
	}

	if raw.RetCode != 0 {
		return nil, fmt.Errorf("bybit API error %d: %s: %w", raw.RetCode, raw.RetMsg, ErrUnavailable)
	}

	if len(raw.Result.List) == 0 {
		return nil, fmt.Errorf("bybit returned empty ticker list for %s: %w", inst.Symbol, ErrUnavailable)
	}

	return &raw.Result.List[0], nil
}
