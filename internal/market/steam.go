// Package market fetches live item prices from the Steam Community Market.
//
// Requests are paced by a token-bucket limiter so a full refresh cycle does
// not trip Steam's anonymous rate limit. Prices are returned in USD.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/skintrack/tracker/internal/cache"
	"github.com/skintrack/tracker/internal/metrics"
)

const (
	// DefaultBaseURL is the Steam Community Market root.
	DefaultBaseURL = "https://steamcommunity.com/market"

	appIDCS2    = "730"
	currencyUSD = "1"
	userAgent   = "Mozilla/5.0 (compatible; skintrack/1.0)"
	imageBase   = "https://community.cloudflare.steamstatic.com/economy/image/"
	topCacheKey = "market:top"
	topCount    = 12
)

// priceRe extracts the first number from strings like "$1,234.56 USD".
var priceRe = regexp.MustCompile(`[\d.,]+`)

var ErrUnavailable = errors.New("market: steam api unavailable")

// PriceSource looks up the current price of an item by market hash name.
// ok is false when the market has no listing for the item.
type PriceSource interface {
	Price(ctx context.Context, marketName string) (price decimal.Decimal, ok bool, err error)
}

// TopItem is one entry of the top-selling list.
type TopItem struct {
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url"`
	PriceText string          `json:"price_text"`
	Volume    int             `json:"volume"`
	SalePrice decimal.Decimal `json:"sale_price"`
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	RequestDelay time.Duration // minimum spacing between requests
	TopTTL       time.Duration
	HTTPClient   *http.Client
}

// Client talks to the Steam market endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	cache   cache.Cache
	topTTL  time.Duration

	mu      sync.Mutex
	lastTop []TopItem // served when Steam fails
}

// NewClient creates a Steam market client.
func NewClient(cfg Config, c cache.Cache) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.TopTTL <= 0 {
		cfg.TopTTL = 10 * time.Minute
	}
	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		limiter: rate.NewLimiter(limit, 1),
		cache:   c,
		topTTL:  cfg.TopTTL,
	}
}

type priceOverview struct {
	Success     bool   `json:"success"`
	LowestPrice string `json:"lowest_price"`
	MedianPrice string `json:"median_price"`
	Volume      string `json:"volume"`
}

// Price returns the lowest listing price, falling back to the median price.
func (c *Client) Price(ctx context.Context, marketName string) (decimal.Decimal, bool, error) {
	q := url.Values{}
	q.Set("appid", appIDCS2)
	q.Set("currency", currencyUSD)
	q.Set("market_hash_name", marketName)

	var body priceOverview
	if err := c.getJSON(ctx, c.baseURL+"/priceoverview/?"+q.Encode(), &body); err != nil {
		metrics.PriceFetches.WithLabelValues("error").Inc()
		return decimal.Zero, false, err
	}
	if !body.Success {
		metrics.PriceFetches.WithLabelValues("no_price").Inc()
		return decimal.Zero, false, nil
	}

	text := body.LowestPrice
	if text == "" {
		text = body.MedianPrice
	}
	price, ok := ParsePrice(text)
	if !ok {
		metrics.PriceFetches.WithLabelValues("no_price").Inc()
		return decimal.Zero, false, nil
	}
	metrics.PriceFetches.WithLabelValues("ok").Inc()
	return price, true, nil
}

// ParsePrice extracts a decimal from a Steam price string.
func ParsePrice(text string) (decimal.Decimal, bool) {
	m := priceRe.FindString(text)
	if m == "" {
		return decimal.Zero, false
	}
	p, err := decimal.NewFromString(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	return p, true
}

type searchResponse struct {
	Success bool `json:"success"`
	Results []struct {
		HashName         string `json:"hash_name"`
		SellListings     int    `json:"sell_listings"`
		SellPrice        int64  `json:"sell_price"` // cents
		SellPriceText    string `json:"sell_price_text"`
		AssetDescription struct {
			IconURL string `json:"icon_url"`
		} `json:"asset_description"`
	} `json:"results"`
}

// TopItems returns the most popular CS2 listings. Results are cached; when
// Steam fails the last good list (or an empty one) is returned.
func (c *Client) TopItems(ctx context.Context) []TopItem {
	if v, ok := c.cache.Get(ctx, topCacheKey); ok {
		var items []TopItem
		if json.Unmarshal([]byte(v), &items) == nil {
			return items
		}
	}

	items, err := c.fetchTop(ctx)
	if err != nil {
		slog.Warn("top items fetch failed", "err", err)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.lastTop == nil {
			return []TopItem{}
		}
		return c.lastTop
	}

	if data, err := json.Marshal(items); err == nil {
		c.cache.Put(ctx, topCacheKey, string(data), c.topTTL)
	}
	c.mu.Lock()
	c.lastTop = items
	c.mu.Unlock()
	return items
}

func (c *Client) fetchTop(ctx context.Context) ([]TopItem, error) {
	q := url.Values{}
	q.Set("query", "")
	q.Set("start", "0")
	q.Set("count", fmt.Sprint(topCount))
	q.Set("search_descriptions", "0")
	q.Set("sort_column", "popular")
	q.Set("sort_dir", "desc")
	q.Set("appid", appIDCS2)
	q.Set("norender", "1")

	var body searchResponse
	if err := c.getJSON(ctx, c.baseURL+"/search/render/?"+q.Encode(), &body); err != nil {
		return nil, err
	}
	if !body.Success {
		return nil, fmt.Errorf("%w: search returned success=false", ErrUnavailable)
	}

	items := make([]TopItem, 0, len(body.Results))
	for _, r := range body.Results {
		items = append(items, TopItem{
			Name:      r.HashName,
			ImageURL:  imageBase + r.AssetDescription.IconURL,
			PriceText: r.SellPriceText,
			Volume:    r.SellListings,
			SalePrice: decimal.New(r.SellPrice, -2),
		})
	}
	return items, nil
}

func (c *Client) getJSON(ctx context.Context, u string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	return nil
}
