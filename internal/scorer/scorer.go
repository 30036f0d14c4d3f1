package scorer

import (
	"sort"

	"github.com/suwandre/fundarb/internal/models"
)

// Funding settles every 8 hours: 3 periods a day over 365 days.
const periodsPerYear = 3 * 365

// DefaultLimit is the number of opportunities kept per snapshot.
const DefaultLimit = 10

type Scorer struct {
	limit int
}

func NewScorer(limit int) *Scorer {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Scorer{limit}
}

// APR annualises the spread between a long and a short funding rate, in percent.
func APR(longRate, shortRate float64) float64 {
	return (shortRate - longRate) * periodsPerYear * 100
}

// Rank builds an opportunity for every row with at least two reported rates
// and returns the best ones, highest APR first.
func (s *Scorer) Rank(rows []models.FundingRow) []models.ArbitrageRow {
	opportunities := []models.ArbitrageRow{}

	for _, row := range rows {
		opp, ok := Score(row)
		if !ok {
			continue
		}
		opportunities = append(opportunities, opp)
	}

	rankOpportunities(opportunities)

	if len(opportunities) > s.limit {
		opportunities = opportunities[:s.limit]
	}
	return opportunities
}

// Score picks the cheapest exchange to be long on and the most expensive to be
// short on. Exchanges are visited in name order and the first minimum/maximum
// wins. ok is false when fewer than two exchanges reported a rate.
func Score(row models.FundingRow) (models.ArbitrageRow, bool) {
	names := make([]string, 0, len(row.Rates))
	for name, rate := range row.Rates {
		if rate != nil {
			names = append(names, name)
		}
	}
	if len(names) < 2 {
		return models.ArbitrageRow{}, false
	}
	sort.Strings(names)

	longEx, shortEx := names[0], names[0]
	longRate, shortRate := *row.Rates[longEx], *row.Rates[shortEx]

	for _, name := range names[1:] {
		rate := *row.Rates[name]
		if rate < longRate {
			longEx, longRate = name, rate
		}
		if rate > shortRate {
			shortEx, shortRate = name, rate
		}
	}

	return models.ArbitrageRow{
		Symbol:        row.Symbol,
		LongExchange:  longEx,
		LongRate:      longRate,
		ShortExchange: shortEx,
		ShortRate:     shortRate,
		APR:           APR(longRate, shortRate),
	}, true
}

// Sorts in place, highest APR first. Equal APRs keep their input order.
func rankOpportunities(opps []models.ArbitrageRow) {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].APR > opps[j].APR
	})
}
