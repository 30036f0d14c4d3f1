package exchange

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"github.com/suwandre/fundarb/internal/models"
)

const binanceBaseURL = "https://fapi.binance.com"

// BinanceAdapter talks to Binance USDⓈ-M futures through the go-binance SDK.
type BinanceAdapter struct {
	client  *futures.Client
	limiter *rate.Limiter
}

func NewBinanceAdapter(opts Options) *BinanceAdapter {
	client := futures.NewClient(opts.APIKey, "")
	client.BaseURL = opts.baseURL(binanceBaseURL)
	client.HTTPClient = &http.Client{Timeout: opts.timeout()}

	return &BinanceAdapter{
		client:  client,
		limiter: opts.Limiter,
	}
}

func (b *BinanceAdapter) Name() string {
	return "binance"
}

func (b *BinanceAdapter) wait(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("binance: rate limiter: %w", err)
	}
	return nil
}

// Lists every futures contract. Perpetuals are flagged as swaps.
func (b *BinanceAdapter) LoadMarkets(ctx context.Context) ([]models.Market, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}

	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance exchange info: %w: %w", ErrUnavailable, err)
	}

	markets := make([]models.Market, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.BaseAsset == "" || s.QuoteAsset == "" {
			continue
		}
		settle := s.MarginAsset
		if settle == "" {
			settle = s.QuoteAsset
		}
		markets = append(markets, models.Market{
			Instrument: models.NewInstrument(s.BaseAsset, s.QuoteAsset, settle),
			ID:         s.Symbol,
			Swap:       string(s.ContractType) == "PERPETUAL",
			Active:     s.Status == "TRADING",
		})
	}
	return markets, nil
}

func (b *BinanceAdapter) FetchTicker(ctx context.Context, inst models.Instrument) (*models.Ticker, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}

	stats, err := b.client.NewListPriceChangeStatsService().Symbol(binanceSymbol(inst)).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance ticker: %w: %w", ErrUnavailable, err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("binance returned empty ticker for %s: %w", inst.Symbol, ErrUnavailable)
	}

	last, err := parseNumber(stats[0].LastPrice)
	if err != nil {
		return nil, fmt.Errorf("binance ticker: %w", err)
	}
	volume, err := parseNumber(stats[0].QuoteVolume)
	if err != nil {
		return nil, fmt.Errorf("binance ticker: %w", err)
	}

	return &models.Ticker{
		Exchange:    "binance",
		Symbol:      inst.Symbol,
		Last:        last,
		QuoteVolume: volume,
	}, nil
}

func (b *BinanceAdapter) FetchFundingRate(ctx context.Context, inst models.Instrument) (*models.FundingRate, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}

	res, err := b.client.NewPremiumIndexService().Symbol(binanceSymbol(inst)).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance funding rate: %w: %w", ErrUnavailable, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("binance returned no premium index for %s: %w", inst.Symbol, ErrUnavailable)
	}

	fundingRate, err := parseNumber(res[0].LastFundingRate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse funding rate value: %w", err)
	}

	return &models.FundingRate{
		Exchange:    "binance",
		Symbol:      inst.Symbol,
		Rate:        fundingRate,
		NextFunding: time.UnixMilli(res[0].NextFundingTime),
	}, nil
}

func (b *BinanceAdapter) Close() error {
	if b.client.HTTPClient != nil {
		b.client.HTTPClient.CloseIdleConnections()
	}
	return nil
}

// Binance futures ids are the concatenated assets (BTC/USDT:USDT -> BTCUSDT).
func binanceSymbol(inst models.Instrument) string {
	return inst.Base + inst.Quote
}
