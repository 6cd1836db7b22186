// Package polygon provides the upstream market-data capability. The Client
// interface is what the fetch pipeline consumes; RESTClient is the concrete
// Polygon.io adapter.
package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"polygon_data_monitor/pkg/ratelimit"
)

// Client is the upstream market-data capability. Any provider can be
// substituted as long as it implements these three operations.
type Client interface {
	// ListAggs returns daily OHLCV bars for ticker over [from, to].
	ListAggs(ctx context.Context, ticker string, from, to time.Time) ([]Agg, error)
	// GetTickerDetails returns symbol metadata, or nil when the provider
	// has no record for the ticker.
	GetTickerDetails(ctx context.Context, ticker string) (*TickerDetails, error)
	// GetMarketStatus returns the current market session snapshot.
	GetMarketStatus(ctx context.Context) (*MarketStatus, error)
}

// RESTClient calls the Polygon.io REST API. All requests go through one
// shared rate limiter, so the configured requests-per-minute budget is a
// process-wide ceiling rather than a per-endpoint one.
type RESTClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	log        *logrus.Logger
}

// NewRESTClient creates a Polygon.io client.
func NewRESTClient(baseURL, apiKey string, limiter *ratelimit.Limiter, log *logrus.Logger) *RESTClient {
	return &RESTClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
		log:     log,
	}
}

// ListAggs fetches 1-day aggregate bars for the date range.
func (c *RESTClient) ListAggs(ctx context.Context, ticker string, from, to time.Time) ([]Agg, error) {
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s",
		url.PathEscape(ticker), from.Format("2006-01-02"), to.Format("2006-01-02"))
	query := url.Values{
		"adjusted": {"true"},
		"sort":     {"asc"},
		"limit":    {"50000"},
	}

	var resp aggsResponse
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("polygon: aggs request for %s failed: %s", ticker, resp.Error)
	}
	return resp.Results, nil
}

// GetTickerDetails fetches reference metadata for a single ticker. A 404
// from the provider is reported as a nil result, not an error.
func (c *RESTClient) GetTickerDetails(ctx context.Context, ticker string) (*TickerDetails, error) {
	path := "/v3/reference/tickers/" + url.PathEscape(ticker)

	var resp tickerDetailsResponse
	if err := c.get(ctx, path, nil, &resp); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return resp.Results, nil
}

// GetMarketStatus fetches the current trading session state.
func (c *RESTClient) GetMarketStatus(ctx context.Context) (*MarketStatus, error) {
	var status MarketStatus
	if err := c.get(ctx, "/v1/marketstatus/now", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// statusError carries a non-2xx response code.
type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("polygon: unexpected status %d from %s", e.code, e.url)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

// get performs one rate-limited GET and decodes the JSON body into out.
func (c *RESTClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("apiKey", c.apiKey)
	reqURL := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("polygon: build request: %w", err)
	}

	c.log.WithField("path", path).Debug("Polygon API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polygon: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode, url: path}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("polygon: decode response: %w", err)
	}
	return nil
}
