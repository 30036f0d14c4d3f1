package aggregator

import (
	"sort"

	"github.com/suwandre/fundarb/internal/models"
)

// Reconcile returns the instruments listed as perpetual swaps on every
// catalog, settled in margin, with one instrument per base asset.
//
// Symbols are visited in lexicographic order and the first symbol seen for a
// base asset wins, so the result does not depend on catalog order.
func Reconcile(catalogs []models.Catalog, margin string) []models.Instrument {
	out := []models.Instrument{}
	if len(catalogs) == 0 {
		return out
	}

	// symbol -> number of catalogs listing it as a swap
	seen := make(map[string]int)
	instruments := make(map[string]models.Instrument)

	for _, c := range catalogs {
		inCatalog := make(map[string]struct{}, len(c.Markets))
		for _, m := range c.Markets {
			if !m.Swap {
				continue
			}
			if _, dup := inCatalog[m.Symbol]; dup {
				continue
			}
			inCatalog[m.Symbol] = struct{}{}
			seen[m.Symbol]++
			if _, ok := instruments[m.Symbol]; !ok {
				instruments[m.Symbol] = m.Instrument
			}
		}
	}

	common := make([]string, 0, len(seen))
	for symbol, n := range seen {
		if n == len(catalogs) {
			common = append(common, symbol)
		}
	}
	sort.Strings(common)

	bases := make(map[string]struct{})
	for _, symbol := range common {
		inst := instruments[symbol]
		if inst.Settle != margin {
			continue
		}
		if _, dup := bases[inst.Base]; dup {
			continue
		}
		bases[inst.Base] = struct{}{}
		out = append(out, inst)
	}

	return out
}
