package aggregator

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/suwandre/fundarb/internal/exchange"
	"github.com/suwandre/fundarb/internal/models"
)

// CollectRates fetches the current funding rate of every instrument on every
// exchange concurrently. Rows come back in instrument order. A failed call
// leaves a nil rate for that exchange and never drops the row.
func CollectRates(ctx context.Context, exchanges []exchange.Exchange, instruments []models.Instrument, concurrency int) []models.FundingRow {
	// rates[i][j] is instrument i on exchange j
	rates := make([][]*float64, len(instruments))

	g := newGroup(ctx, concurrency)
	for i, inst := range instruments {
		rates[i] = make([]*float64, len(exchanges))
		for j, ex := range exchanges {
			g.Go(func() error {
				fr, err := ex.FetchFundingRate(ctx, inst)
				if err != nil {
					log.Debug().Err(err).Str("exchange", ex.Name()).Str("symbol", inst.Symbol).Msg("funding rate unavailable")
					return nil
				}
				rate := fr.Rate
				rates[i][j] = &rate
				return nil
			})
		}
	}
	_ = g.Wait()

	rows := make([]models.FundingRow, len(instruments))
	for i, inst := range instruments {
		row := models.FundingRow{
			Symbol: inst.Symbol,
			Rates:  make(map[string]*float64, len(exchanges)),
		}
		for j, ex := range exchanges {
			row.Rates[ex.Name()] = rates[i][j]
		}
		rows[i] = row
	}
	return rows
}
