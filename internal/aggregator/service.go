package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/suwandre/fundarb/internal/exchange"
	"github.com/suwandre/fundarb/internal/models"
	"github.com/suwandre/fundarb/internal/scorer"
)

type Options struct {
	Margin         string   // settlement currency kept by reconciliation
	Reference      string   // volume oracle; defaults to the first exchange
	VolumeLimit    int      // funding table size
	ArbitrageLimit int      // opportunities kept
	Concurrency    int      // per-stage goroutine bound, 0 = unbounded
	MajorSymbols   []string // symbols reported by MajorFundingRates
}

// Service runs the aggregation pipeline. Every call opens its own set of
// exchange clients and releases them before returning.
type Service struct {
	provider exchange.Provider
	scorer   *scorer.Scorer
	opts     Options
}

func NewService(provider exchange.Provider, opts Options) *Service {
	if opts.Margin == "" {
		opts.Margin = "USDT"
	}
	if opts.VolumeLimit <= 0 {
		opts.VolumeLimit = 50
	}
	if len(opts.MajorSymbols) == 0 {
		opts.MajorSymbols = []string{"BTC/USDT:USDT", "ETH/USDT:USDT"}
	}

	return &Service{
		provider: provider,
		scorer:   scorer.NewScorer(opts.ArbitrageLimit),
		opts:     opts,
	}
}

// FundingTable compares funding rates for the most liquid common instruments.
func (s *Service) FundingTable(ctx context.Context) ([]models.FundingRow, error) {
	start := time.Now()

	exchanges, err := s.provider.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open exchange clients: %w", err)
	}
	defer exchange.CloseAll(exchanges)

	ref, err := s.reference(exchanges)
	if err != nil {
		return nil, err
	}

	universe := Reconcile(s.loadCatalogs(ctx, exchanges), s.opts.Margin)
	ranked := RankByVolume(ctx, ref, universe, s.opts.VolumeLimit, s.opts.Concurrency)

	instruments := make([]models.Instrument, len(ranked))
	for i, r := range ranked {
		instruments[i] = r.Instrument
	}

	rows := CollectRates(ctx, exchanges, instruments, s.opts.Concurrency)
	for i := range rows {
		rows[i].VolumeReference = ranked[i].Volume
	}

	log.Info().
		Int("universe", len(universe)).
		Int("rows", len(rows)).
		Dur("took", time.Since(start)).
		Msg("funding table built")

	return rows, nil
}

// TopArbitrage scores the whole reconciled universe, without volume ranking.
func (s *Service) TopArbitrage(ctx context.Context) ([]models.ArbitrageRow, error) {
	start := time.Now()

	exchanges, err := s.provider.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open exchange clients: %w", err)
	}
	defer exchange.CloseAll(exchanges)

	universe := Reconcile(s.loadCatalogs(ctx, exchanges), s.opts.Margin)
	rows := CollectRates(ctx, exchanges, universe, s.opts.Concurrency)
	opportunities := s.scorer.Rank(rows)

	log.Info().
		Int("universe", len(universe)).
		Int("opportunities", len(opportunities)).
		Dur("took", time.Since(start)).
		Msg("arbitrage table built")

	return opportunities, nil
}

// PerpSymbols lists each exchange's perpetual swaps. An exchange whose catalog
// cannot be loaded reports an empty list.
func (s *Service) PerpSymbols(ctx context.Context) (map[string][]string, error) {
	exchanges, err := s.provider.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open exchange clients: %w", err)
	}
	defer exchange.CloseAll(exchanges)

	result := make(map[string][]string, len(exchanges))
	for _, c := range s.loadCatalogs(ctx, exchanges) {
		symbols := []string{}
		for _, m := range c.Markets {
			if m.Swap {
				symbols = append(symbols, m.Symbol)
			}
		}
		sort.Strings(symbols)
		result[c.Exchange] = symbols
	}
	return result, nil
}

// MajorFundingRates returns the raw funding rate of the major symbols on every
// exchange; a failed lookup carries its error message instead.
func (s *Service) MajorFundingRates(ctx context.Context) (map[string]map[string]any, error) {
	exchanges, err := s.provider.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open exchange clients: %w", err)
	}
	defer exchange.CloseAll(exchanges)

	instruments := make([]models.Instrument, 0, len(s.opts.MajorSymbols))
	for _, symbol := range s.opts.MajorSymbols {
		inst, err := ParseSymbol(symbol)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, inst)
	}

	results := make([][]any, len(exchanges))
	g := newGroup(ctx, s.opts.Concurrency)
	for i, ex := range exchanges {
		results[i] = make([]any, len(instruments))
		for j, inst := range instruments {
			g.Go(func() error {
				fr, err := ex.FetchFundingRate(ctx, inst)
				if err != nil {
					results[i][j] = map[string]string{"error": err.Error()}
					return nil
				}
				results[i][j] = fr
				return nil
			})
		}
	}
	_ = g.Wait()

	out := make(map[string]map[string]any, len(exchanges))
	for i, ex := range exchanges {
		rates := make(map[string]any, len(instruments))
		for j, inst := range instruments {
			rates[inst.Symbol] = results[i][j]
		}
		out[ex.Name()] = rates
	}
	return out, nil
}

// loadCatalogs fetches every exchange's catalog concurrently. A failed catalog
// is logged and treated as empty.
func (s *Service) loadCatalogs(ctx context.Context, exchanges []exchange.Exchange) []models.Catalog {
	catalogs := make([]models.Catalog, len(exchanges))

	var g errgroup.Group
	for i, ex := range exchanges {
		catalogs[i].Exchange = ex.Name()
		g.Go(func() error {
			markets, err := ex.LoadMarkets(ctx)
			if err != nil {
				log.Warn().Err(err).Str("exchange", ex.Name()).Msg("failed to load markets, treating catalog as empty")
				return nil
			}
			catalogs[i].Markets = markets
			return nil
		})
	}
	_ = g.Wait()

	return catalogs
}

func (s *Service) reference(exchanges []exchange.Exchange) (exchange.Exchange, error) {
	if len(exchanges) == 0 {
		return nil, fmt.Errorf("no exchanges configured")
	}
	if s.opts.Reference == "" {
		return exchanges[0], nil
	}
	for _, ex := range exchanges {
		if ex.Name() == s.opts.Reference {
			return ex, nil
		}
	}
	return nil, fmt.Errorf("reference exchange %q is not configured", s.opts.Reference)
}
