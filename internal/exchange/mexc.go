package exchange

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/suwandre/fundarb/internal/models"
)

const mexcBaseURL = "https://contract.mexc.com"

type MexcAdapter struct {
	rest *restClient
}

type mexcContract struct {
	Symbol     string `json:"symbol"` // BTC_USDT
	BaseCoin   string `json:"baseCoin"`
	QuoteCoin  string `json:"quoteCoin"`
	SettleCoin string `json:"settleCoin"`
	FutureType int    `json:"futureType"` // 1 = perpetual
	State      int    `json:"state"`      // 0 = enabled
}

type mexcTicker struct {
	LastPrice   float64 `json:"lastPrice"`
	Amount24    float64 `json:"amount24"` // quote turnover
	FundingRate float64 `json:"fundingRate"`
	Timestamp   int64   `json:"timestamp"`
}

type mexcEnvelope[T any] struct {
	Success bool `json:"success"`
	Code    int  `json:"code"`
	Data    T    `json:"data"`
}

func NewMexcAdapter(opts Options) *MexcAdapter {
	return &MexcAdapter{
		rest: newRestClient("mexc", opts.baseURL(mexcBaseURL), opts),
	}
}

func (m *MexcAdapter) Name() string {
	return "mexc"
}

func (m *MexcAdapter) LoadMarkets(ctx context.Context) ([]models.Market, error) {
	var raw mexcEnvelope[[]mexcContract]
	if err := m.rest.getJSON(ctx, "/api/v1/contract/detail", &raw); err != nil {
		return nil, err
	}
	if !raw.Success || raw.Code != 0 {
		return nil, fmt.Errorf("mexc API error code %d: %w", raw.Code, ErrUnavailable)
	}

	markets := make([]models.Market, 0, len(raw.Data))
	for _, c := range raw.Data {
		markets = append(markets, models.Market{
			Instrument: models.NewInstrument(c.BaseCoin, c.QuoteCoin, c.SettleCoin),
			ID:         c.Symbol,
			Swap:       c.FutureType == 1,
			Active:     c.State == 0,
		})
	}
	return markets, nil
}

func (m *MexcAdapter) FetchTicker(ctx context.Context, inst models.Instrument) (*models.Ticker, error) {
	ticker, err := m.fetchTicker(ctx, inst)
	if err != nil {
		return nil, err
	}

	return &models.Ticker{
		Exchange:    "mexc",
		Symbol:      inst.Symbol,
		Last:        ticker.LastPrice,
		QuoteVolume: ticker.Amount24,
	}, nil
}

// The contract ticker carries the current funding rate. Its timestamp is the
// quote time, not the next settlement, so NextFunding comes from the
// funding_rate endpoint when that succeeds.
func (m *MexcAdapter) FetchFundingRate(ctx context.Context, inst models.Instrument) (*models.FundingRate, error) {
	var raw mexcEnvelope[struct {
		FundingRate    float64 `json:"fundingRate"`
		NextSettleTime int64   `json:"nextSettleTime"`
	}]
	if err := m.rest.getJSON(ctx, "/api/v1/contract/funding_rate/"+url.PathEscape(mexcSymbol(inst)), &raw); err == nil && raw.Success && raw.Code == 0 {
		return &models.FundingRate{
			Exchange:    "mexc",
			Symbol:      inst.Symbol,
			Rate:        raw.Data.FundingRate,
			NextFunding: time.UnixMilli(raw.Data.NextSettleTime),
		}, nil
	}

	ticker, err := m.fetchTicker(ctx, inst)
	if err != nil {
		return nil, err
	}

	return &models.FundingRate{
		Exchange: "mexc",
		Symbol:   inst.Symbol,
		Rate:     ticker.FundingRate,
	}, nil
}

func (m *MexcAdapter) Close() error {
	return m.rest.close()
}

func (m *MexcAdapter) fetchTicker(ctx context.Context, inst models.Instrument) (*mexcTicker, error) {
	var raw mexcEnvelope[mexcTicker]
	if err := m.rest.getJSON(ctx, "/api/v1/contract/ticker?symbol="+url.QueryEscape(mexcSymbol(inst)), &raw); err != nil {
		return nil, err
	}

	if !raw.Success || raw.Code != 0 {
		return nil, fmt.Errorf("mexc API error code %d: %w", raw.Code, ErrUnavailable)
	}

	return &raw.Data, nil
}

// MEXC futures uses BASE_QUOTE (e.g. BTC_USDT).
func mexcSymbol(inst models.Instrument) string {
	return inst.Base + "_" + inst.Quote
}
