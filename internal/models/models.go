package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Instrument is a perpetual contract in unified BASE/QUOTE:SETTLE form.
type Instrument struct {
	Symbol string `json:"symbol"` // e.g. BTC/USDT:USDT
	Base   string `json:"base"`
	Quote  string `json:"quote"`
	Settle string `json:"settle"` // margin currency
}

// NewInstrument builds the unified symbol from its assets.
func NewInstrument(base, quote, settle string) Instrument {
	return Instrument{
		Symbol: fmt.Sprintf("%s/%s:%s", base, quote, settle),
		Base:   base,
		Quote:  quote,
		Settle: settle,
	}
}

// Market is one entry of an exchange catalog.
type Market struct {
	Instrument
	ID     string `json:"id"`   // exchange-native id, e.g. BTCUSDT or BTC-USDT-SWAP
	Swap   bool   `json:"swap"` // perpetual swap
	Active bool   `json:"active"`
}

// Catalog is the set of markets one exchange listed during a single pass.
type Catalog struct {
	Exchange string
	Markets  []Market
}

type Ticker struct {
	Exchange    string  `json:"exchange"`
	Symbol      string  `json:"symbol"`
	Last        float64 `json:"last"`
	QuoteVolume float64 `json:"quote_volume"` // 24h volume in quote currency
}

type FundingRate struct {
	Exchange    string    `json:"exchange"`
	Symbol      string    `json:"symbol"`
	Rate        float64   `json:"rate"`
	NextFunding time.Time `json:"next_funding"`
}

// FundingRow compares one instrument's current funding rate across exchanges.
// A nil rate means the exchange did not report one.
type FundingRow struct {
	Symbol          string              `json:"symbol"`
	VolumeReference float64             `json:"volume_reference"`
	Rates           map[string]*float64 `json:"rates"`
}

// ArbitrageRow pairs the cheapest exchange to be long on with the most
// expensive one to be short on. LongRate <= ShortRate.
type ArbitrageRow struct {
	Symbol        string  `json:"symbol"`
	LongExchange  string  `json:"long_exchange"`
	LongRate      float64 `json:"long_rate"`
	ShortExchange string  `json:"short_exchange"`
	ShortRate     float64 `json:"short_rate"`
	APR           float64 `json:"apr"` // percent
}

type DataType string

const (
	DataTypeFunding   DataType = "funding"
	DataTypeArbitrage DataType = "arbitrage"
)

func ParseDataType(s string) (DataType, error) {
	switch DataType(s) {
	case DataTypeFunding, DataTypeArbitrage:
		return DataType(s), nil
	}
	return "", fmt.Errorf("unknown data type %q", s)
}

// Snapshot is an immutable, persisted table produced by one aggregation pass.
type Snapshot struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"-"`
	DataType  DataType        `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"data"`
}

type HourlyPeak struct {
	Hour   time.Time `json:"hour"`
	Symbol string    `json:"symbol"`
	APR    float64   `json:"apr"`
}
