package finnhub

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"FinPulse/internal/domain/models"
	"FinPulse/pkg/cache"
	xhttp "FinPulse/pkg/http"
)

const DefaultBaseURL = "https://finnhub.io/api/v1"

// Client implements repository.MarketData against the Finnhub REST API.
type Client struct {
	http       *xhttp.Client
	baseURL    string
	apiKey     string
	suffix     string
	cache      cache.Service
	profileTTL time.Duration
	now        func() time.Time
}

type Option func(*Client)

// WithBaseURL points the client at another host (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithSymbolSuffix appends an exchange suffix (".NS") to every instrument id.
func WithSymbolSuffix(s string) Option {
	return func(c *Client) {
		c.suffix = s
	}
}

// WithProfileCache caches company profiles for ttl.
func WithProfileCache(svc cache.Service, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = svc
		c.profileTTL = ttl
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http = xhttp.NewClient(xhttp.WithTimeout(d))
	}
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		http:       xhttp.NewClient(xhttp.WithTimeout(10 * time.Second)),
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		profileTTL: 6 * time.Hour,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type candleResponse struct {
	Close  []float64 `json:"c"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Open   []float64 `json:"o"`
	Volume []float64 `json:"v"`
	Time   []int64   `json:"t"`
	Status string    `json:"s"`
}

// Latest returns the last daily bar inside the lookback range.
func (c *Client) Latest(ctx context.Context, instrumentID string, lookbackDays int) (*models.Bar, error) {
	if lookbackDays < 1 {
		lookbackDays = 1
	}
	to := c.now()
	from := to.AddDate(0, 0, -lookbackDays)

	var resp candleResponse
	err := c.get(ctx, "/stock/candle", map[string][]string{
		"symbol":     {c.symbol(instrumentID)},
		"resolution": {"D"},
		"from":       {strconv.FormatInt(from.Unix(), 10)},
		"to":         {strconv.FormatInt(to.Unix(), 10)},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("finnhub candle %s: %w", instrumentID, err)
	}

	if resp.Status == "no_data" || len(resp.Close) == 0 {
		return nil, fmt.Errorf("finnhub candle %s (%dd): %w", instrumentID, lookbackDays, models.ErrNoData)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("finnhub candle %s: unexpected status %q", instrumentID, resp.Status)
	}

	i := len(resp.Close) - 1
	if len(resp.Open) <= i || len(resp.High) <= i || len(resp.Low) <= i {
		return nil, fmt.Errorf("finnhub candle %s: ragged arrays", instrumentID)
	}

	bar := &models.Bar{
		Open:  resp.Open[i],
		High:  resp.High[i],
		Low:   resp.Low[i],
		Close: resp.Close[i],
	}
	if len(resp.Volume) > i && resp.Volume[i] > 0 {
		bar.Volume = int64(resp.Volume[i])
	}
	if len(resp.Time) > i {
		bar.Time = time.Unix(resp.Time[i], 0).UTC()
	}
	return bar, nil
}

type profileResponse struct {
	Name      string   `json:"name"`
	MarketCap *float64 `json:"marketCapitalization"`
	Industry  string   `json:"finnhubIndustry"`
}

type metricResponse struct {
	Metric struct {
		PETTM *float64 `json:"peTTM"`
	} `json:"metric"`
}

// Profile returns company metadata, cached for the profile TTL.
// A failing metric lookup leaves PERatio unknown.
func (c *Client) Profile(ctx context.Context, instrumentID string) (*models.Profile, error) {
	if c.cache == nil {
		return c.loadProfile(ctx, instrumentID)
	}
	key := cache.GenerateKeyWithParams("profile", instrumentID)
	return cache.GetOrLoad(ctx, c.cache, key, c.profileTTL, func(ctx context.Context) (*models.Profile, error) {
		return c.loadProfile(ctx, instrumentID)
	})
}

func (c *Client) loadProfile(ctx context.Context, instrumentID string) (*models.Profile, error) {
	var pr profileResponse
	if err := c.get(ctx, "/stock/profile2", map[string][]string{
		"symbol": {c.symbol(instrumentID)},
	}, &pr); err != nil {
		return nil, fmt.Errorf("finnhub profile %s: %w", instrumentID, err)
	}

	p := &models.Profile{Name: pr.Name}
	if pr.MarketCap != nil && *pr.MarketCap > 0 {
		// Finnhub reports market capitalization in millions
		p.MarketCap = models.Float64Ptr(*pr.MarketCap * 1e6)
	}
	if pr.Industry != "" {
		p.Sector = models.StringPtr(pr.Industry)
	}

	var mr metricResponse
	if err := c.get(ctx, "/stock/metric", map[string][]string{
		"symbol": {c.symbol(instrumentID)},
		"metric": {"all"},
	}, &mr); err == nil && mr.Metric.PETTM != nil {
		p.PERatio = mr.Metric.PETTM
	}
	return p, nil
}

func (c *Client) get(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + path,
		Headers:     map[string]string{"X-Finnhub-Token": c.apiKey},
		QueryParams: query,
	}, dest)
	if xhttp.IsStatus(err, http.StatusTooManyRequests) {
		return fmt.Errorf("%w: %v", models.ErrProviderDegraded, err)
	}
	return err
}

func (c *Client) symbol(instrumentID string) string {
	return instrumentID + c.suffix
}
