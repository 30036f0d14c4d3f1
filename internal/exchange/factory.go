package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Supported lists the venues an adapter exists for.
var Supported = []string{"binance", "bybit", "okx", "mexc"}

// Provider hands out a fresh set of exchange clients for one pipeline run.
// The caller owns the returned clients and must Close them.
type Provider interface {
	Names() []string
	Open(ctx context.Context) ([]Exchange, error)
}

type Config struct {
	Name    string
	APIKey  string
	BaseURL string
	RPS     float64 // 0 = unlimited
	Timeout time.Duration
}

type venue struct {
	name string
	opts Options
	ctor func(Options) Exchange
}

// Factory builds per-run clients. Rate limiters are created once and shared by
// every run so the budget holds across concurrent requests.
type Factory struct {
	venues []venue
}

func NewFactory(configs []Config) (*Factory, error) {
	f := &Factory{}

	for _, cfg := range configs {
		ctor, err := constructor(cfg.Name)
		if err != nil {
			return nil, err
		}

		opts := Options{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		}
		if cfg.RPS > 0 {
			burst := int(cfg.RPS)
			if burst < 1 {
				burst = 1
			}
			opts.Limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
		}

		f.venues = append(f.venues, venue{name: cfg.Name, opts: opts, ctor: ctor})
	}

	return f, nil
}

func constructor(name string) (func(Options) Exchange, error) {
	switch name {
	case "binance":
		return func(o Options) Exchange { return NewBinanceAdapter(o) }, nil
	case "bybit":
		return func(o Options) Exchange { return NewBybitAdapter(o) }, nil
	case "okx":
		return func(o Options) Exchange { return NewOkxAdapter(o) }, nil
	case "mexc":
		return func(o Options) Exchange { return NewMexcAdapter(o) }, nil
	}
	return nil, fmt.Errorf("unsupported exchange %q", name)
}

// Names returns the configured exchanges in configuration order.
func (f *Factory) Names() []string {
	names := make([]string, len(f.venues))
	for i, v := range f.venues {
		names[i] = v.name
	}
	return names
}

func (f *Factory) Open(ctx context.Context) ([]Exchange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exchanges := make([]Exchange, len(f.venues))
	for i, v := range f.venues {
		exchanges[i] = v.ctor(v.opts)
	}
	return exchanges, nil
}

// CloseAll releases every client, logging failures.
func CloseAll(exchanges []Exchange) {
	for _, ex := range exchanges {
		if err := ex.Close(); err != nil {
			log.Warn().Err(err).Str("exchange", ex.Name()).Msg("failed to close exchange client")
		}
	}
}
