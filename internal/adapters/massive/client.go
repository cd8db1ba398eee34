package massive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"boxscout/internal/adapters/config"
	"boxscout/internal/domain/options"
	"boxscout/internal/domain/scan"
	"boxscout/internal/metrics"
	"boxscout/pkg/errors"
	"boxscout/pkg/logger"
)

const (
	maxAttempts    = 3
	initialBackoff = time.Second
	pageLimit      = 1000
)

// Client talks to the market-data provider's REST API. It normalizes
// every payload at this boundary so the rest of the system only sees
// validated domain types.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	provider   string
	barsPath   string
	limiter    *rate.Limiter
	tz         *time.Location
	log        *logger.Logger
}

// NewClient creates a provider client from config
func NewClient(cfg config.ProviderConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "provider api key is required")
	}

	provider := strings.ToLower(cfg.Name)
	baseURL := cfg.BaseURL
	if baseURL == "" {
		switch provider {
		case "polygon":
			baseURL = "https://api.polygon.io"
		default:
			baseURL = "https://api.massive.com"
		}
	}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}

	tz, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, errors.Wrap(err, "load exchange timezone")
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		provider:   provider,
		barsPath:   cfg.BarsPathTemplate,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		tz:         tz,
		log:        logger.Get().With("component", "massive_client"),
	}, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// request performs one GET with rate limiting, retry with exponential
// backoff on retryable statuses, and JSON decoding into dest
func (c *Client) request(ctx context.Context, endpoint, path string, params url.Values, symbol string, dest interface{}) error {
	fullURL := path
	if !strings.HasPrefix(path, "http") {
		fullURL = c.baseURL + path
	}
	if len(params) > 0 {
		fullURL = fullURL + "?" + params.Encode()
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return errors.Wrap(err, "build provider request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		elapsed := time.Since(start).Milliseconds()
		metrics.ProviderAPILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			lastErr = err
			metrics.ProviderAPICalls.WithLabelValues(endpoint, "error").Inc()
			c.log.Errorw("provider request error",
				"path", path, "symbol", symbol, "elapsed_ms", elapsed, "attempt", attempt, "error", err)
			if attempt < maxAttempts {
				if !sleepCtx(ctx, backoff) {
					return ctx.Err()
				}
				backoff *= 2
				continue
			}
			return errors.Wrapf(errors.ErrProviderUnavailable, "request failed after %d attempts: %v", maxAttempts, err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return errors.Wrap(readErr, "read provider response")
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			metrics.ProviderAPICalls.WithLabelValues(endpoint, "error").Inc()
			c.log.Warnw("provider request 404",
				"path", path, "symbol", symbol, "elapsed_ms", elapsed, "snippet", snippet(body))
			return errors.Wrapf(errors.ErrSymbolNotFound, "GET %s returned 404", path)

		case retryableStatus(resp.StatusCode) && attempt < maxAttempts:
			if resp.StatusCode == http.StatusTooManyRequests {
				metrics.ProviderAPICalls.WithLabelValues(endpoint, "rate_limited").Inc()
			} else {
				metrics.ProviderAPICalls.WithLabelValues(endpoint, "error").Inc()
			}
			c.log.Warnw("provider request retryable",
				"path", path, "symbol", symbol, "status", resp.StatusCode,
				"elapsed_ms", elapsed, "attempt", attempt, "snippet", snippet(body))
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff *= 2
			continue

		case resp.StatusCode != http.StatusOK:
			metrics.ProviderAPICalls.WithLabelValues(endpoint, "error").Inc()
			c.log.Warnw("provider request non-200",
				"path", path, "symbol", symbol, "status", resp.StatusCode,
				"elapsed_ms", elapsed, "snippet", snippet(body))
			return errors.Wrapf(errors.ErrProviderUnavailable, "GET %s returned %d", path, resp.StatusCode)
		}

		metrics.ProviderAPICalls.WithLabelValues(endpoint, "success").Inc()
		c.log.Debugw("provider request ok",
			"path", path, "symbol", symbol, "status", resp.StatusCode, "elapsed_ms", elapsed)
		if dest == nil {
			return nil
		}
		if err := json.Unmarshal(body, dest); err != nil {
			return errors.Wrap(err, "decode provider response")
		}
		return nil
	}
	return errors.Wrapf(errors.ErrProviderUnavailable, "request failed: %v", lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func snippet(body []byte) string {
	const max = 300
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}

type barsResponse struct {
	Results []map[string]interface{} `json:"results"`
}

// GetBars fetches intraday bars for the symbol, ascending by timestamp
func (c *Client) GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]scan.Bar, error) {
	multiplier, timespan, err := timeframeToRange(timeframe)
	if err != nil {
		return nil, err
	}

	var path string
	params := url.Values{}
	if c.provider == "polygon" {
		day := time.Now().In(c.tz).Format("2006-01-02")
		path = fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%s/%s", symbol, multiplier, timespan, day, day)
		params.Set("adjusted", "true")
		params.Set("sort", "asc")
		params.Set("limit", fmt.Sprint(limit))
	} else {
		path = strings.ReplaceAll(c.barsPath, "{symbol}", symbol)
		params.Set("timeframe", timeframe)
		params.Set("limit", fmt.Sprint(limit))
	}

	var payload barsResponse
	if err := c.request(ctx, "bars", path, params, symbol, &payload); err != nil {
		return nil, err
	}
	return normalizeBars(payload.Results)
}

func timeframeToRange(timeframe string) (int, string, error) {
	switch timeframe {
	case "1m":
		return 1, "minute", nil
	case "5m":
		return 5, "minute", nil
	}
	return 0, "", errors.Wrapf(errors.ErrInvalidInput, "unsupported timeframe %q", timeframe)
}

// GetDailySnapshot fetches the daily volume and IV context for a symbol
func (c *Client) GetDailySnapshot(ctx context.Context, symbol string) (*scan.DailySnapshot, error) {
	var path string
	if c.provider == "polygon" {
		path = "/v2/snapshot/locale/us/markets/stocks/tickers/" + symbol
	} else {
		path = fmt.Sprintf("/markets/%s/snapshot", symbol)
	}

	var payload map[string]interface{}
	if err := c.request(ctx, "snapshot", path, nil, symbol, &payload); err != nil {
		return nil, err
	}
	return normalizeSnapshot(payload), nil
}

type contractsPage struct {
	Results []map[string]interface{} `json:"results"`
	NextURL string                   `json:"next_url"`
}

// GetOptionExpirations returns the sorted distinct expiration dates of
// active contracts on the underlying, following pagination
func (c *Client) GetOptionExpirations(ctx context.Context, symbol string) ([]string, error) {
	params := url.Values{}
	params.Set("underlying_ticker", symbol)
	params.Set("expired", "false")
	params.Set("limit", fmt.Sprint(pageLimit))
	params.Set("sort", "expiration_date")

	seen := make(map[string]bool)
	path := "/v3/reference/options/contracts"
	for path != "" {
		var page contractsPage
		if err := c.request(ctx, "contracts", path, params, symbol, &page); err != nil {
			return nil, err
		}
		for _, row := range page.Results {
			if exp, ok := row["expiration_date"].(string); ok && exp != "" {
				seen[exp] = true
			}
		}
		path = strings.TrimPrefix(page.NextURL, c.baseURL)
		params = nil
	}

	expirations := make([]string, 0, len(seen))
	for exp := range seen {
		expirations = append(expirations, exp)
	}
	sort.Strings(expirations)
	return expirations, nil
}

// GetOptionChain returns the normalized contract chain for one
// expiration, following pagination
func (c *Client) GetOptionChain(ctx context.Context, symbol, expiration string) ([]options.Contract, error) {
	params := url.Values{}
	params.Set("underlying_ticker", symbol)
	params.Set("expired", "false")
	params.Set("expiration_date", expiration)
	params.Set("limit", fmt.Sprint(pageLimit))
	params.Set("sort", "strike_price")

	var contracts []options.Contract
	path := "/v3/reference/options/contracts"
	for path != "" {
		var page contractsPage
		if err := c.request(ctx, "contracts", path, params, symbol, &page); err != nil {
			return nil, err
		}
		for _, row := range page.Results {
			contracts = append(contracts, normalizeContract(row, expiration))
		}
		path = strings.TrimPrefix(page.NextURL, c.baseURL)
		params = nil
	}
	return contracts, nil
}
