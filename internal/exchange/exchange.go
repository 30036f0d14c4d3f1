package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/suwandre/fundarb/internal/models"
)

// Exchange is the market data capability of one venue. Every call may fail
// independently of the others and is safe to issue concurrently.
type Exchange interface {
	Name() string
	LoadMarkets(ctx context.Context) ([]models.Market, error)
	FetchTicker(ctx context.Context, inst models.Instrument) (*models.Ticker, error)
	FetchFundingRate(ctx context.Context, inst models.Instrument) (*models.FundingRate, error)
	// Close releases the client's idle connections.
	Close() error
}

// ErrUnavailable marks a failed provider call.
var ErrUnavailable = errors.New("provider unavailable")

// Options configures one adapter. Zero values fall back to public defaults.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Limiter *rate.Limiter
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 10 * time.Second
	}
	return o.Timeout
}

func (o Options) baseURL(fallback string) string {
	if o.BaseURL == "" {
		return fallback
	}
	return strings.TrimRight(o.BaseURL, "/")
}

// restClient is the plain REST plumbing shared by the hand-written adapters.
type restClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newRestClient(name, baseURL string, opts Options) *restClient {
	return &restClient{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: opts.timeout(),
		},
		limiter: opts.Limiter,
	}
}

// getJSON performs a rate-limited GET against path and decodes the body into out.
func (c *restClient) getJSON(ctx context.Context, path string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limiter: %w", c.name, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", c.name, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w: %w", c.name, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d: %w", c.name, resp.StatusCode, ErrUnavailable)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response body: %w", c.name, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to parse response: %w", c.name, err)
	}
	return nil
}

func (c *restClient) close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// parseNumber parses the string-encoded decimals exchanges return.
// An empty string is zero.
func parseNumber(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	f, _ := d.Float64()
	return f, nil
}

func parseMillis(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := decimal.NewFromString(s)
	if err != nil || ms.IsZero() {
		return time.Time{}
	}
	return time.UnixMilli(ms.IntPart())
}
