package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/suwandre/fundarb/internal/exchange"
)

type Config struct {
	AppPort           string        `yaml:"app_port"`
	Exchanges         []string      `yaml:"exchanges"`          // first one is the volume reference unless overridden
	ReferenceExchange string        `yaml:"reference_exchange"` // optional
	MarginCurrency    string        `yaml:"margin_currency"`
	TopVolumeLimit    int           `yaml:"top_volume_limit"`
	TopArbitrageLimit int           `yaml:"top_arbitrage_limit"`
	MajorSymbols      []string      `yaml:"major_symbols"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	MaxConcurrency    int           `yaml:"max_concurrency"` // 0 = unbounded
	RefreshInterval   time.Duration `yaml:"refresh_interval"`
	HistoryRetention  time.Duration `yaml:"history_retention"` // 0 = keep forever

	Database DatabaseConfig         `yaml:"database"`
	Redis    RedisConfig            `yaml:"redis"`
	Log      LogConfig              `yaml:"log"`
	Venues   map[string]VenueConfig `yaml:"venues"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables the latest-snapshot mirror when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type VenueConfig struct {
	BaseURL string  `yaml:"base_url"`
	RPS     float64 `yaml:"rps"`
	APIKey  string  `yaml:"api_key"`
}

var databaseDrivers = []string{"sqlite", "postgres"}

func defaults() *Config {
	return &Config{
		AppPort:           "3000",
		Exchanges:         []string{"binance", "bybit", "okx"},
		MarginCurrency:    "USDT",
		TopVolumeLimit:    50,
		TopArbitrageLimit: 10,
		MajorSymbols:      []string{"BTC/USDT:USDT", "ETH/USDT:USDT"},
		CacheTTL:          300 * time.Second,
		RequestTimeout:    10 * time.Second,
		MaxConcurrency:    32,
		RefreshInterval:   5 * time.Minute,
		Database:          DatabaseConfig{Driver: "sqlite"},
		Log:               LogConfig{Level: "info"},
		Venues: map[string]VenueConfig{
			"binance": {RPS: 20},
			"bybit":   {RPS: 10},
			"okx":     {RPS: 10},
			"mexc":    {RPS: 10},
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path,
// a .env file and finally the process environment, later sources winning.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, reading from environment directly")
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("path", path).Msg("no config file, using defaults")
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot read config file: %w", err)
	}

	defaultVenues := c.Venues
	c.Venues = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("cannot parse YAML: %w", err)
	}

	// file venues only override the fields they set
	for name, v := range c.Venues {
		merged := defaultVenues[name]
		if v.BaseURL != "" {
			merged.BaseURL = v.BaseURL
		}
		if v.RPS != 0 {
			merged.RPS = v.RPS
		}
		if v.APIKey != "" {
			merged.APIKey = v.APIKey
		}
		defaultVenues[name] = merged
	}
	c.Venues = defaultVenues
	return nil
}

func (c *Config) applyEnv() error {
	c.AppPort = getEnv("APP_PORT", c.AppPort)
	c.ReferenceExchange = getEnv("REFERENCE_EXCHANGE", c.ReferenceExchange)
	c.MarginCurrency = getEnv("MARGIN_CURRENCY", c.MarginCurrency)
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_DSN", c.Database.DSN)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)

	if v, ok := os.LookupEnv("EXCHANGES"); ok {
		c.Exchanges = splitList(strings.ToLower(v))
	}
	if v, ok := os.LookupEnv("MAJOR_SYMBOLS"); ok {
		c.MajorSymbols = splitList(v)
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	c.TopVolumeLimit = collectInt(collect, "TOP_VOLUME_LIMIT", c.TopVolumeLimit)
	c.TopArbitrageLimit = collectInt(collect, "TOP_ARBITRAGE_LIMIT", c.TopArbitrageLimit)
	c.MaxConcurrency = collectInt(collect, "MAX_CONCURRENCY", c.MaxConcurrency)
	c.Redis.DB = collectInt(collect, "REDIS_DB", c.Redis.DB)
	c.CacheTTL = collectDuration(collect, "CACHE_TTL", c.CacheTTL)
	c.RequestTimeout = collectDuration(collect, "REQUEST_TIMEOUT", c.RequestTimeout)
	c.RefreshInterval = collectDuration(collect, "REFRESH_INTERVAL", c.RefreshInterval)
	c.HistoryRetention = collectDuration(collect, "HISTORY_RETENTION", c.HistoryRetention)

	if c.Venues == nil {
		c.Venues = map[string]VenueConfig{}
	}
	for _, name := range exchange.Supported {
		prefix := strings.ToUpper(name) + "_"
		v := c.Venues[name]
		v.BaseURL = getEnv(prefix+"BASE_URL", v.BaseURL)
		v.APIKey = getEnv(prefix+"API_KEY", v.APIKey)
		if raw, ok := os.LookupEnv(prefix + "RPS"); ok {
			rps, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				collect(fmt.Errorf("%sRPS: %w", prefix, err))
			} else {
				v.RPS = rps
			}
		}
		c.Venues[name] = v
	}

	return errors.Join(errs...)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Exchanges) < 2 {
		errs = append(errs, fmt.Errorf("at least two exchanges are required, got %d", len(c.Exchanges)))
	}
	seen := make(map[string]bool, len(c.Exchanges))
	for _, name := range c.Exchanges {
		if !slices.Contains(exchange.Supported, name) {
			errs = append(errs, fmt.Errorf("unsupported exchange %q", name))
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("exchange %q listed twice", name))
		}
		seen[name] = true
	}
	if c.ReferenceExchange != "" && !seen[c.ReferenceExchange] {
		errs = append(errs, fmt.Errorf("reference exchange %q is not in the exchange list", c.ReferenceExchange))
	}
	if !slices.Contains(databaseDrivers, c.Database.Driver) {
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.MarginCurrency == "" {
		errs = append(errs, errors.New("margin currency must not be empty"))
	}
	if c.TopVolumeLimit <= 0 || c.TopArbitrageLimit <= 0 {
		errs = append(errs, errors.New("table limits must be positive"))
	}
	if c.MaxConcurrency < 0 {
		errs = append(errs, errors.New("max concurrency must not be negative"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("cache ttl must be positive"))
	}

	return errors.Join(errs...)
}

// Reference returns the volume oracle exchange.
func (c *Config) Reference() string {
	if c.ReferenceExchange != "" {
		return c.ReferenceExchange
	}
	if len(c.Exchanges) == 0 {
		return ""
	}
	return c.Exchanges[0]
}

// ExchangeConfigs returns the adapter settings of the configured exchanges, in
// configuration order.
func (c *Config) ExchangeConfigs() []exchange.Config {
	configs := make([]exchange.Config, 0, len(c.Exchanges))
	for _, name := range c.Exchanges {
		v := c.Venues[name]
		configs = append(configs, exchange.Config{
			Name:    name,
			APIKey:  v.APIKey,
			BaseURL: v.BaseURL,
			RPS:     v.RPS,
			Timeout: c.RequestTimeout,
		})
	}
	return configs
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func collectInt(collect func(error), key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		collect(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

// collectDuration accepts Go durations ("5m") or plain seconds ("300").
func collectDuration(collect func(error), key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := parseDuration(raw)
	if err != nil {
		collect(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
