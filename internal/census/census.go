// Package census looks up the county of a street address with the U.S.
// Census Bureau geocoder.
package census

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/dealer-scraper/internal/config"
	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/normalize"
	"github.com/sells-group/dealer-scraper/internal/resilience"
)

const (
	defaultBaseURL = "https://geocoding.geo.census.gov/geocoder"
	benchmark      = "Public_AR_Current"
	vintage        = "Current_Current"
	quickFactsURL  = "https://www.census.gov/quickfacts/fact/table/"

	// Source is the County.Source of every census result.
	Source = "Census Bureau Geocoder"
)

// Lookup resolves the county of an address. A nil county with a nil error
// means the geocoder had no match.
type Lookup interface {
	LookupCounty(ctx context.Context, addr model.Address) (*model.County, error)
}

type geographiesResponse struct {
	Result struct {
		AddressMatches []struct {
			MatchedAddress string `json:"matchedAddress"`
			Geographies    struct {
				Counties []countyGeography `json:"Counties"`
			} `json:"geographies"`
		} `json:"addressMatches"`
	} `json:"result"`
}

type countyGeography struct {
	Name   string `json:"NAME"`
	State  string `json:"STATE"`
	County string `json:"COUNTY"`
}

// Client calls the geographies/onelineaddress endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at another geocoder root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		burst := max(int(rps), 1)
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBreaker sets the circuit breaker guarding the geocoder.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// NewClient creates a client with 5 req/s and a default breaker.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(5, 5),
	}
	for _, o := range opts {
		o(c)
	}
	if c.breaker == nil {
		cfg := resilience.DefaultCircuitBreakerConfig()
		cfg.Name = "census"
		c.breaker = resilience.NewCircuitBreaker(cfg)
	}
	return c
}

// FromConfig builds a client from config, or returns nil when the lookup
// is disabled.
func FromConfig(cfg config.CensusConfig) *Client {
	if !cfg.Enabled {
		return nil
	}
	opts := []Option{}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, WithRateLimit(cfg.RateLimit))
	}
	if cfg.TimeoutSecs > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second}))
	}
	bc := resilience.FromCensusConfig(cfg)
	bc.Name = "census"
	opts = append(opts, WithBreaker(resilience.NewCircuitBreaker(bc)))
	return NewClient(opts...)
}

// LookupCounty geocodes addr and returns its county. Addresses without a
// street and either a city/state pair or a ZIP are not sent.
func (c *Client) LookupCounty(ctx context.Context, addr model.Address) (*model.County, error) {
	if addr.Street == "" || (addr.ZipCode == "" && (addr.City == "" || addr.State == "")) {
		return nil, nil
	}
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*model.County, error) {
		return c.lookup(ctx, addr)
	})
}

func (c *Client) lookup(ctx context.Context, addr model.Address) (*model.County, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "census: rate limit")
	}

	params := url.Values{
		"address":   {OneLine(addr)},
		"benchmark": {benchmark},
		"vintage":   {vintage},
		"format":    {"json"},
	}
	reqURL := c.baseURL + "/geographies/onelineaddress?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "census: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "census: request")
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "census: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("census: returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "census: read body")
	}
	var gr geographiesResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, eris.Wrap(err, "census: parse response")
	}

	if len(gr.Result.AddressMatches) == 0 {
		zap.L().Debug("census: no address match", zap.String("address", addr.Full()))
		return nil, nil
	}
	counties := gr.Result.AddressMatches[0].Geographies.Counties
	if len(counties) == 0 || counties[0].Name == "" {
		return nil, nil
	}
	g := counties[0]
	county := normalize.County(g.Name, addr.State, Source)
	county.VerificationURL = VerificationURL(g.State, g.County)
	return &county, nil
}

// OneLine renders addr the way the geocoder expects it.
func OneLine(addr model.Address) string {
	var parts []string
	for _, p := range []string{addr.Street, addr.City, addr.State, addr.ZipCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// VerificationURL links to the county's QuickFacts table, or "" without
// FIPS codes.
func VerificationURL(stateFIPS, countyFIPS string) string {
	if stateFIPS == "" || countyFIPS == "" {
		return ""
	}
	return fmt.Sprintf("%s%s%s", quickFactsURL, stateFIPS, countyFIPS)
}
