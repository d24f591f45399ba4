// Package fx supplies currency conversion rates from USD, backed by the
// Frankfurter API and an injected TTL cache.
//
// Lookups never fail: an unknown currency or an unreachable API yields a rate
// of 1 so that portfolio pages still render, in USD figures.
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/skintrack/tracker/internal/cache"
	"github.com/skintrack/tracker/internal/metrics"
	"github.com/skintrack/tracker/internal/model"
)

// DefaultBaseURL is the Frankfurter latest-rates endpoint.
const DefaultBaseURL = "https://api.frankfurter.app/latest"

// DefaultTTL is how long a fetched rate is reused.
const DefaultTTL = time.Hour

// Rates looks up the multiplicative factor from USD to a currency.
type Rates interface {
	Rate(ctx context.Context, currency string) decimal.Decimal
}

// Client implements Rates over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	cache   cache.Cache
	ttl     time.Duration
	group   singleflight.Group
}

// NewClient creates an FX client. A nil httpClient uses a 10s timeout client.
func NewClient(baseURL string, httpClient *http.Client, c cache.Cache, ttl time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Client{baseURL: baseURL, http: httpClient, cache: c, ttl: ttl}
}

type latestResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Rate returns units of currency per USD. USD and empty input return 1.
func (c *Client) Rate(ctx context.Context, currency string) decimal.Decimal {
	one := decimal.NewFromInt(1)
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == model.BaseCurrency {
		return one
	}

	key := "fx:" + currency
	if v, ok := c.cache.Get(ctx, key); ok {
		if rate, err := decimal.NewFromString(v); err == nil {
			metrics.FXLookups.WithLabelValues("cache").Inc()
			return rate
		}
	}

	// The fetch is shared by every waiting caller, so it must outlive the
	// request that happened to start it. The HTTP client timeout bounds it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(currency, func() (any, error) {
		rate, err := c.fetch(shared, currency)
		if err != nil {
			return nil, err
		}
		c.cache.Put(shared, key, rate.String(), c.ttl)
		return rate, nil
	})
	if err != nil {
		metrics.FXLookups.WithLabelValues("error").Inc()
		slog.Warn("fx rate unavailable, using 1", "currency", currency, "err", err)
		return one
	}
	metrics.FXLookups.WithLabelValues("fetch").Inc()
	return v.(decimal.Decimal)
}

func (c *Client) fetch(ctx context.Context, currency string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("from", model.BaseCurrency)
	q.Set("to", currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fx request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fx request: status %d", resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("fx decode: %w", err)
	}
	rate, ok := body.Rates[currency]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("fx: currency %s not found", currency)
	}
	return rate, nil
}

// Static is a fixed-rate Rates implementation.
type Static map[string]decimal.Decimal

// Rate returns the configured rate, or 1 when the currency is unknown.
func (s Static) Rate(_ context.Context, currency string) decimal.Decimal {
	if r, ok := s[strings.ToUpper(currency)]; ok {
		return r
	}
	return decimal.NewFromInt(1)
}
