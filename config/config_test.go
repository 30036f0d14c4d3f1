package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, []string{"binance", "bybit", "okx"}, cfg.Exchanges)
	require.Equal(t, "binance", cfg.Reference())
	require.Equal(t, "USDT", cfg.MarginCurrency)
	require.Equal(t, 50, cfg.TopVolumeLimit)
	require.Equal(t, 10, cfg.TopArbitrageLimit)
	require.Equal(t, 300*time.Second, cfg.CacheTTL)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Zero(t, cfg.HistoryRetention)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
exchanges: [okx, bybit, mexc]
cache_ttl: 2m
history_retention: 720h
database:
  driver: postgres
  dsn: postgres://fundarb@localhost/fundarb?sslmode=disable
venues:
  okx:
    base_url: http://okx.local
`)

	t.Setenv("TOP_ARBITRAGE_LIMIT", "5")
	t.Setenv("REQUEST_TIMEOUT", "3")
	t.Setenv("BYBIT_RPS", "2.5")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, []string{"okx", "bybit", "mexc"}, cfg.Exchanges)
	require.Equal(t, "okx", cfg.Reference())
	require.Equal(t, 2*time.Minute, cfg.CacheTTL)
	require.Equal(t, 720*time.Hour, cfg.HistoryRetention)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, 5, cfg.TopArbitrageLimit)
	require.Equal(t, 3*time.Second, cfg.RequestTimeout)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)

	venues := cfg.ExchangeConfigs()
	require.Len(t, venues, 3)
	require.Equal(t, "okx", venues[0].Name)
	require.Equal(t, "http://okx.local", venues[0].BaseURL)
	require.Equal(t, 10.0, venues[0].RPS, "file override keeps the default rate")
	require.Equal(t, 2.5, venues[1].RPS)
	require.Equal(t, 3*time.Second, venues[2].Timeout)
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("MAX_CONCURRENCY", "many")

	_, err := Load("")
	require.ErrorContains(t, err, "CACHE_TTL")
	require.ErrorContains(t, err, "MAX_CONCURRENCY")
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeFile(t, "exchanges: [okx"))
	require.Error(t, err)
}

func TestExchangeListFromEnv(t *testing.T) {
	t.Setenv("EXCHANGES", " Binance, OKX ,")
	t.Setenv("MAJOR_SYMBOLS", "BTC/USDT:USDT")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, []string{"binance", "okx"}, cfg.Exchanges)
	require.Equal(t, []string{"BTC/USDT:USDT"}, cfg.MajorSymbols)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"single exchange", func(c *Config) { c.Exchanges = []string{"okx"} }, "at least two exchanges"},
		{"unknown exchange", func(c *Config) { c.Exchanges = []string{"okx", "ftx"} }, `unsupported exchange "ftx"`},
		{"duplicate exchange", func(c *Config) { c.Exchanges = []string{"okx", "okx"} }, "listed twice"},
		{"foreign reference", func(c *Config) { c.ReferenceExchange = "mexc" }, "reference exchange"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database driver"},
		{"zero limit", func(c *Config) { c.TopVolumeLimit = 0 }, "limits must be positive"},
		{"zero ttl", func(c *Config) { c.CacheTTL = 0 }, "cache ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
