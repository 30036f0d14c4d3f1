package exchange

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/suwandre/fundarb/internal/models"
)

const okxBaseURL = "https://www.okx.com"

type OkxAdapter struct {
	rest *restClient
}

type okxInstrument struct {
	InstID    string `json:"instId"`   // BTC-USDT-SWAP
	InstType  string `json:"instType"` // SWAP
	Uly       string `json:"uly"`      // BTC-USDT
	SettleCcy string `json:"settleCcy"`
	State     string `json:"state"`
}

// OKX wraps every payload as {"code": "0", "msg": "", "data": [...]}.
type okxEnvelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

func NewOkxAdapter(opts Options) *OkxAdapter {
	return &OkxAdapter{
		rest: newRestClient("okx", opts.baseURL(okxBaseURL), opts),
	}
}

func (o *OkxAdapter) Name() string {
	return "okx"
}

func (o *OkxAdapter) LoadMarkets(ctx context.Context) ([]models.Market, error) {
	var raw okxEnvelope[okxInstrument]
	if err := o.get(ctx, "/api/v5/public/instruments?instType=SWAP", &raw); err != nil {
		return nil, err
	}

	markets := make([]models.Market, 0, len(raw.Data))
	for _, inst := range raw.Data {
		base, quote, ok := strings.Cut(inst.Uly, "-")
		if !ok {
			continue
		}
		markets = append(markets, models.Market{
			Instrument: models.NewInstrument(base, quote, inst.SettleCcy),
			ID:         inst.InstID,
			Swap:       inst.InstType == "SWAP",
			Active:     inst.State == "live",
		})
	}
	return markets, nil
}

// OKX reports swap volume in base currency, so quote volume is derived from the last price.
func (o *OkxAdapter) FetchTicker(ctx context.Context, inst models.Instrument) (*models.Ticker, error) {
	var raw okxEnvelope[struct {
		Last      string `json:"last"`
		VolCcy24h string `json:"volCcy24h"`
	}]
	if err := o.get(ctx, "/api/v5/market/ticker?instId="+url.QueryEscape(okxInstID(inst)), &raw); err != nil {
		return nil, err
	}
	if len(raw.Data) == 0 {
		return nil, fmt.Errorf("okx returned empty ticker for %s: %w", inst.Symbol, ErrUnavailable)
	}

	last, err := parseNumber(raw.Data[0].Last)
	if err != nil {
		return nil, fmt.Errorf("okx ticker: %w", err)
	}
	baseVolume, err := parseNumber(raw.Data[0].VolCcy24h)
	if err != nil {
		return nil, fmt.Errorf("okx ticker: %w", err)
	}

	return &models.Ticker{
		Exchange:    "okx",
		Symbol:      inst.Symbol,
		Last:        last,
		QuoteVolume: baseVolume * last,
	}, nil
}

func (o *OkxAdapter) FetchFundingRate(ctx context.Context, inst models.Instrument) (*models.FundingRate, error) {
	var raw okxEnvelope[struct {
		FundingRate     string `json:"fundingRate"`
		NextFundingTime string `json:"nextFundingTime"`
		FundingTime     string `json:"fundingTime"`
	}]
	if err := o.get(ctx, "/api/v5/public/funding-rate?instId="+url.QueryEscape(okxInstID(inst)), &raw); err != nil {
		return nil, err
	}
	if len(raw.Data) == 0 {
		return nil, fmt.Errorf("okx returned no funding rate for %s: %w", inst.Symbol, ErrUnavailable)
	}

	rate, err := parseNumber(raw.Data[0].FundingRate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse funding rate: %w", err)
	}

	// fundingTime is the upcoming settlement on the v5 endpoint.
	next := parseMillis(raw.Data[0].FundingTime)
	if next.IsZero() {
		next = parseMillis(raw.Data[0].NextFundingTime)
	}

	return &models.FundingRate{
		Exchange:    "okx",
		Symbol:      inst.Symbol,
		Rate:        rate,
		NextFunding: next,
	}, nil
}

func (o *OkxAdapter) Close() error {
	return o.rest.close()
}

func (o *OkxAdapter) get(ctx context.Context, path string, out interface{ code() (string, string) }) error {
	if err := o.rest.getJSON(ctx, path, out); err != nil {
		return err
	}
	if code, msg := out.code(); code != "0" {
		return fmt.Errorf("okx API error %s: %s: %w", code, msg, ErrUnavailable)
	}
	return nil
}

func (e *okxEnvelope[T]) code() (string, string) {
	return e.Code, e.Msg
}

// BTC/USDT:USDT -> BTC-USDT-SWAP
func okxInstID(inst models.Instrument) string {
	return inst.Base + "-" + inst.Quote + "-SWAP"
}
