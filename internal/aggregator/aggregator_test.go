package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suwandre/fundarb/internal/exchange"
	"github.com/suwandre/fundarb/internal/models"
)

var errDown = errors.New("exchange down")

type fakeExchange struct {
	name       string
	markets    []models.Market
	marketsErr error
	volumes    map[string]float64 // symbol -> quote volume; missing = error
	rates      map[string]float64 // symbol -> funding rate; missing = error
	delay      func(symbol string) time.Duration
	closed     atomic.Int32
}

func (f *fakeExchange) Name() string { return f.name }

func (f *fakeExchange) LoadMarkets(ctx context.Context) ([]models.Market, error) {
	if f.marketsErr != nil {
		return nil, f.marketsErr
	}
	return f.markets, nil
}

func (f *fakeExchange) FetchTicker(ctx context.Context, inst models.Instrument) (*models.Ticker, error) {
	v, ok := f.volumes[inst.Symbol]
	if !ok {
		return nil, errDown
	}
	return &models.Ticker{Exchange: f.name, Symbol: inst.Symbol, QuoteVolume: v}, nil
}

func (f *fakeExchange) FetchFundingRate(ctx context.Context, inst models.Instrument) (*models.FundingRate, error) {
	if f.delay != nil {
		time.Sleep(f.delay(inst.Symbol))
	}
	r, ok := f.rates[inst.Symbol]
	if !ok {
		return nil, errDown
	}
	return &models.FundingRate{Exchange: f.name, Symbol: inst.Symbol, Rate: r}, nil
}

func (f *fakeExchange) Close() error {
	f.closed.Add(1)
	return nil
}

type fakeProvider struct {
	exchanges []*fakeExchange
	opened    atomic.Int32
}

func (p *fakeProvider) Names() []string {
	names := make([]string, len(p.exchanges))
	for i, ex := range p.exchanges {
		names[i] = ex.name
	}
	return names
}

func (p *fakeProvider) Open(ctx context.Context) ([]exchange.Exchange, error) {
	p.opened.Add(1)
	out := make([]exchange.Exchange, len(p.exchanges))
	for i, ex := range p.exchanges {
		out[i] = ex
	}
	return out, nil
}

func swap(symbol string) models.Market {
	inst, err := ParseSymbol(symbol)
	if err != nil {
		panic(err)
	}
	return models.Market{Instrument: inst, Swap: true, Active: true}
}

func catalog(exchange string, markets ...models.Market) models.Catalog {
	return models.Catalog{Exchange: exchange, Markets: markets}
}

func symbols(instruments []models.Instrument) []string {
	out := make([]string, len(instruments))
	for i, inst := range instruments {
		out[i] = inst.Symbol
	}
	return out
}

func TestReconcileRequiresEveryExchange(t *testing.T) {
	got := Reconcile([]models.Catalog{
		catalog("binance", swap("BTC/USDT:USDT"), swap("ETH/USDT:USDT")),
		catalog("bybit", swap("BTC/USDT:USDT")),
		catalog("okx", swap("BTC/USDT:USDT"), swap("ETH/USDT:USDT")),
	}, "USDT")

	require.Equal(t, []string{"BTC/USDT:USDT"}, symbols(got))
}

func TestReconcileFiltersNonSwapsAndMargin(t *testing.T) {
	future := swap("SOL/USDT:USDT")
	future.Swap = false

	got := Reconcile([]models.Catalog{
		catalog("a", swap("BTC/USD:BTC"), swap("ETH/USDT:USDT"), future),
		catalog("b", swap("BTC/USD:BTC"), swap("ETH/USDT:USDT"), swap("SOL/USDT:USDT")),
	}, "USDT")

	require.Equal(t, []string{"ETH/USDT:USDT"}, symbols(got))
}

func TestReconcileOneInstrumentPerBase(t *testing.T) {
	got := Reconcile([]models.Catalog{
		catalog("a", swap("BTC/USDT:USDT"), swap("BTC/USDC:USDT"), swap("ETH/USDT:USDT")),
		catalog("b", swap("BTC/USDC:USDT"), swap("BTC/USDT:USDT"), swap("ETH/USDT:USDT")),
	}, "USDT")

	// lexicographically first symbol wins for a base
	require.Equal(t, []string{"BTC/USDC:USDT", "ETH/USDT:USDT"}, symbols(got))
}

func TestReconcileEmptyUniverse(t *testing.T) {
	got := Reconcile([]models.Catalog{
		catalog("a", swap("BTC/USDT:USDT")),
		catalog("b", swap("ETH/USDT:USDT")),
	}, "USDT")
	require.NotNil(t, got)
	require.Empty(t, got)

	require.Empty(t, Reconcile(nil, "USDT"))
	require.Empty(t, Reconcile([]models.Catalog{catalog("a", swap("BTC/USDT:USDT")), catalog("b")}, "USDT"))
}

func TestReconcileIgnoresCatalogOrder(t *testing.T) {
	catalogs := []models.Catalog{
		catalog("a", swap("XRP/USDT:USDT"), swap("BTC/USDT:USDT"), swap("ETH/USDT:USDT"), swap("DOGE/USDT:USDT")),
		catalog("b", swap("ETH/USDT:USDT"), swap("BTC/USDT:USDT"), swap("XRP/USDT:USDT")),
		catalog("c", swap("BTC/USDT:USDT"), swap("XRP/USDT:USDT"), swap("ETH/USDT:USDT"), swap("ADA/USDT:USDT")),
	}
	want := symbols(Reconcile(catalogs, "USDT"))
	require.Equal(t, []string{"BTC/USDT:USDT", "ETH/USDT:USDT", "XRP/USDT:USDT"}, want)

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		shuffled := append([]models.Catalog(nil), catalogs...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		require.ElementsMatch(t, want, symbols(Reconcile(shuffled, "USDT")))
	}
}

func TestRankByVolume(t *testing.T) {
	insts := []models.Instrument{
		models.NewInstrument("A", "USDT", "USDT"),
		models.NewInstrument("B", "USDT", "USDT"),
		models.NewInstrument("C", "USDT", "USDT"),
		models.NewInstrument("D", "USDT", "USDT"),
		models.NewInstrument("E", "USDT", "USDT"),
	}
	ref := &fakeExchange{name: "binance", volumes: map[string]float64{
		"A/USDT:USDT": 10,
		"B/USDT:USDT": 300,
		"C/USDT:USDT": 10,
		// D fails and ranks as zero
		"E/USDT:USDT": 50,
	}}

	ranked := RankByVolume(context.Background(), ref, insts, 50, 0)
	require.Len(t, ranked, 5)

	var order []string
	for i, r := range ranked {
		order = append(order, r.Base)
		if i > 0 {
			require.GreaterOrEqual(t, ranked[i-1].Volume, r.Volume)
		}
	}
	require.Equal(t, []string{"B", "E", "A", "C", "D"}, order, "ties keep reconciled order")
	require.Zero(t, ranked[4].Volume)

	top := RankByVolume(context.Background(), ref, insts, 2, 1)
	require.Len(t, top, 2)
	require.Equal(t, "B", top[0].Base)
}

func TestRankByVolumeEmpty(t *testing.T) {
	ranked := RankByVolume(context.Background(), &fakeExchange{name: "binance"}, nil, 50, 0)
	require.Empty(t, ranked)
}

func TestCollectRatesKeepsInputOrder(t *testing.T) {
	var insts []models.Instrument
	rates := map[string]float64{}
	for i := 0; i < 20; i++ {
		inst := models.NewInstrument(fmt.Sprintf("T%02d", i), "USDT", "USDT")
		insts = append(insts, inst)
		rates[inst.Symbol] = float64(i) / 10000
	}

	slow := &fakeExchange{
		name:  "binance",
		rates: rates,
		// earlier instruments finish last
		delay: func(symbol string) time.Duration {
			n, _ := strconv.Atoi(symbol[1:3])
			return time.Duration(20-n) * time.Millisecond
		},
	}
	down := &fakeExchange{name: "okx"}

	rows := CollectRates(context.Background(), []exchange.Exchange{slow, down}, insts, 0)
	require.Len(t, rows, 20)
	for i, row := range rows {
		require.Equal(t, insts[i].Symbol, row.Symbol)
		require.Contains(t, row.Rates, "okx")
		require.Nil(t, row.Rates["okx"], "failed exchange maps to nil")
		require.NotNil(t, row.Rates["binance"])
		require.Equal(t, float64(i)/10000, *row.Rates["binance"])
	}
}

func referenceDeployment() *fakeProvider {
	return &fakeProvider{exchanges: []*fakeExchange{
		{
			name:    "binance",
			markets: []models.Market{swap("BTC/USDT:USDT"), swap("ETH/USDT:USDT"), swap("SOL/USDT:USDT")},
			volumes: map[string]float64{"BTC/USDT:USDT": 1000, "ETH/USDT:USDT": 500, "SOL/USDT:USDT": 2000},
			rates:   map[string]float64{"BTC/USDT:USDT": 0.0001, "ETH/USDT:USDT": 0.0002, "SOL/USDT:USDT": 0.0003},
		},
		{
			name:    "bybit",
			markets: []models.Market{swap("BTC/USDT:USDT"), swap("ETH/USDT:USDT"), swap("SOL/USDT:USDT")},
			rates:   map[string]float64{"BTC/USDT:USDT": 0.0005, "SOL/USDT:USDT": 0.0001},
		},
		{
			name:    "okx",
			markets: []models.Market{swap("BTC/USDT:USDT"), swap("ETH/USDT:USDT"), swap("SOL/USDT:USDT")},
			rates:   map[string]float64{"SOL/USDT:USDT": 0.0002},
		},
	}}
}

func requireAllClosed(t *testing.T, p *fakeProvider) {
	t.Helper()
	for _, ex := range p.exchanges {
		require.Equal(t, p.opened.Load(), ex.closed.Load(), "%s client not released", ex.name)
	}
}

func TestServiceFundingTable(t *testing.T) {
	p := referenceDeployment()
	svc := NewService(p, Options{})

	rows, err := svc.FundingTable(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.Equal(t, "SOL/USDT:USDT", rows[0].Symbol)
	require.Equal(t, 2000.0, rows[0].VolumeReference)
	require.Equal(t, "BTC/USDT:USDT", rows[1].Symbol)
	require.Equal(t, "ETH/USDT:USDT", rows[2].Symbol)

	require.Nil(t, rows[1].Rates["okx"])
	require.Equal(t, 0.0005, *rows[1].Rates["bybit"])
	requireAllClosed(t, p)
}

func TestServiceTopArbitrage(t *testing.T) {
	p := referenceDeployment()
	svc := NewService(p, Options{})

	opps, err := svc.TopArbitrage(context.Background())
	require.NoError(t, err)
	require.Len(t, opps, 2, "ETH has a single reported rate and is excluded")

	require.Equal(t, "BTC/USDT:USDT", opps[0].Symbol)
	require.Equal(t, "binance", opps[0].LongExchange)
	require.Equal(t, "bybit", opps[0].ShortExchange)
	require.InDelta(t, 43.8, opps[0].APR, 1e-9)

	require.Equal(t, "SOL/USDT:USDT", opps[1].Symbol)
	require.Equal(t, "bybit", opps[1].LongExchange)
	require.Equal(t, "binance", opps[1].ShortExchange)
	requireAllClosed(t, p)
}

func TestServiceCatalogFailureYieldsEmptyTable(t *testing.T) {
	p := referenceDeployment()
	p.exchanges[1].marketsErr = errDown
	svc := NewService(p, Options{})

	rows, err := svc.FundingTable(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rows)
	require.Empty(t, rows)

	opps, err := svc.TopArbitrage(context.Background())
	require.NoError(t, err)
	require.Empty(t, opps)
	requireAllClosed(t, p)
}

func TestServiceUnknownReference(t *testing.T) {
	p := referenceDeployment()
	_, err := NewService(p, Options{Reference: "kraken"}).FundingTable(context.Background())
	require.Error(t, err)
	requireAllClosed(t, p)
}

func TestServicePerpSymbols(t *testing.T) {
	p := referenceDeployment()
	p.exchanges[2].marketsErr = errDown

	got, err := NewService(p, Options{}).PerpSymbols(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"BTC/USDT:USDT", "ETH/USDT:USDT", "SOL/USDT:USDT"}, got["binance"])
	require.Empty(t, got["okx"])
	require.Contains(t, got, "okx")
}

func TestServiceMajorFundingRates(t *testing.T) {
	p := referenceDeployment()

	got, err := NewService(p, Options{}).MajorFundingRates(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)

	fr, ok := got["binance"]["BTC/USDT:USDT"].(*models.FundingRate)
	require.True(t, ok)
	require.Equal(t, 0.0001, fr.Rate)

	failed, ok := got["okx"]["BTC/USDT:USDT"].(map[string]string)
	require.True(t, ok)
	require.Contains(t, failed["error"], "exchange down")
	requireAllClosed(t, p)
}

func TestParseSymbol(t *testing.T) {
	inst, err := ParseSymbol("1000PEPE/USDT:USDT")
	require.NoError(t, err)
	require.Equal(t, models.Instrument{Symbol: "1000PEPE/USDT:USDT", Base: "1000PEPE", Quote: "USDT", Settle: "USDT"}, inst)

	inst, err = ParseSymbol("BTC/USD")
	require.NoError(t, err)
	require.Equal(t, "BTC/USD:USD", inst.Symbol)

	for _, bad := range []string{"", "BTC", "/USDT", "BTC/", "BTC/USDT:"} {
		_, err := ParseSymbol(bad)
		require.Error(t, err, bad)
	}
}
