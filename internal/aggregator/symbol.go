package aggregator

import (
	"fmt"
	"strings"

	"github.com/suwandre/fundarb/internal/models"
)

// ParseSymbol splits a unified BASE/QUOTE:SETTLE symbol. A missing settle
// part defaults to the quote currency.
func ParseSymbol(symbol string) (models.Instrument, error) {
	base, rest, ok := strings.Cut(symbol, "/")
	if !ok || base == "" || rest == "" {
		return models.Instrument{}, fmt.Errorf("invalid symbol %q", symbol)
	}

	quote, settle, ok := strings.Cut(rest, ":")
	if !ok {
		settle = quote
	}
	if quote == "" || settle == "" {
		return models.Instrument{}, fmt.Errorf("invalid symbol %q", symbol)
	}

	return models.NewInstrument(base, quote, settle), nil
}
