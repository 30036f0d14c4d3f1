package aggregator

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/suwandre/fundarb/internal/exchange"
	"github.com/suwandre/fundarb/internal/models"
)

type RankedInstrument struct {
	models.Instrument
	Volume float64
}

// RankByVolume orders instruments by 24h quote volume on ref, highest first,
// and keeps the top limit. A failed or missing ticker counts as zero volume.
// Equal volumes keep their input order.
func RankByVolume(ctx context.Context, ref exchange.Exchange, instruments []models.Instrument, limit, concurrency int) []RankedInstrument {
	ranked := make([]RankedInstrument, len(instruments))

	g := newGroup(ctx, concurrency)
	for i, inst := range instruments {
		ranked[i].Instrument = inst
		g.Go(func() error {
			ticker, err := ref.FetchTicker(ctx, inst)
			if err != nil {
				log.Debug().Err(err).Str("exchange", ref.Name()).Str("symbol", inst.Symbol).Msg("volume unavailable, ranking as zero")
				return nil
			}
			ranked[i].Volume = ticker.QuoteVolume
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Volume > ranked[b].Volume
	})

	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// newGroup returns an errgroup bounded to concurrency goroutines; zero or
// less means unbounded. Tasks never return errors, so the derived context is
// not used to cancel siblings.
func newGroup(ctx context.Context, concurrency int) *errgroup.Group {
	g, _ := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	return g
}
