// Package alphavantage provides a client for the Alpha Vantage market data API.
// The free tier allows 25 requests per day and 5 per minute; both quotas are
// enforced locally so the service degrades before the API starts refusing.
package alphavantage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aristath/quantwand/internal/clientdata"
	"github.com/aristath/quantwand/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL           = "https://www.alphavantage.co/query"
	defaultDailyLimit        = 25
	defaultRequestsPerMinute = 5
)

// ClientInterface is the subset of the client used by the rest of the service.
type ClientInterface interface {
	GetDailyAdjusted(ctx context.Context, symbol, outputSize string) ([]DailyPrice, error)
	GetGlobalQuote(ctx context.Context, symbol string) (*GlobalQuote, error)
	GetRemainingRequests() int
}

type cacheEntry struct {
	data      interface{}
	expiresAt time.Time
}

// Client is the Alpha Vantage API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
	cacheRepo  *clientdata.Repository
	metrics    *metrics.Registry

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	mu           sync.Mutex
	dailyLimit   int
	requestCount int
	resetAt      time.Time

	cacheMu  sync.RWMutex
	cache    map[string]cacheEntry
	cacheTTL CacheTTL
}

// NewClient creates a new Alpha Vantage client.
// An empty apiKey is allowed; every request then fails with ErrInvalidAPIKey.
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log:        log.With().Str("client", "alphavantage").Logger(),
		limiter:    rate.NewLimiter(rate.Every(time.Minute/defaultRequestsPerMinute), defaultRequestsPerMinute),
		breaker:    newBreaker("alphavantage"),
		dailyLimit: defaultDailyLimit,
		resetAt:    nextMidnightUTC(),
		cache:      make(map[string]cacheEntry),
		cacheTTL:   DefaultCacheTTL(),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

// SetBaseURL overrides the API endpoint (used by tests).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// SetHTTPClient overrides the HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetLimits configures the daily quota (0 = unlimited) and the per-minute rate.
func (c *Client) SetLimits(daily, perMinute int) {
	c.mu.Lock()
	c.dailyLimit = daily
	c.mu.Unlock()

	if perMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}
}

// SetCacheRepo enables the persistent quote cache.
func (c *Client) SetCacheRepo(repo *clientdata.Repository) {
	c.cacheRepo = repo
}

// SetMetrics enables request instrumentation.
func (c *Client) SetMetrics(m *metrics.Registry) {
	c.metrics = m
}

// SetCacheTTL replaces the in-memory cache durations.
func (c *Client) SetCacheTTL(ttl CacheTTL) {
	c.cacheMu.Lock()
	c.cacheTTL = ttl
	c.cacheMu.Unlock()
}

// GetRemainingRequests returns the number of requests left today.
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeResetLocked()
	remaining := c.dailyLimit - c.requestCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ResetDailyCounter clears the daily request counter.
func (c *Client) ResetDailyCounter() {
	c.mu.Lock()
	c.requestCount = 0
	c.resetAt = nextMidnightUTC()
	c.mu.Unlock()
}

// ClearCache drops every in-memory cache entry.
func (c *Client) ClearCache() {
	c.cacheMu.Lock()
	c.cache = make(map[string]cacheEntry)
	c.cacheMu.Unlock()
}

func (c *Client) maybeResetLocked() {
	if !time.Now().Before(c.resetAt) {
		c.requestCount = 0
		c.resetAt = nextMidnightUTC()
	}
}

// checkRateLimit reserves one request from the daily quota.
func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeResetLocked()
	if c.dailyLimit > 0 && c.requestCount >= c.dailyLimit {
		return ErrRateLimitExceeded{}
	}
	c.requestCount++
	return nil
}

func (c *Client) getFromCache(key string) (interface{}, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	entry, ok := c.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

func (c *Client) setCache(key string, data interface{}, ttl time.Duration) {
	c.cacheMu.Lock()
	c.cache[key] = cacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
	c.cacheMu.Unlock()
}

// buildCacheKey builds a stable key from the function and its params, without the API key.
func buildCacheKey(function string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "apikey" || k == "function" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(function)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(params[k])
	}
	return b.String()
}

// checkAPIError detects the error payloads Alpha Vantage returns with status 200.
func (c *Client) checkAPIError(body []byte, symbol string) error {
	text := string(body)
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "Thank you for using Alpha Vantage") {
		return ErrRateLimitExceeded{}
	}
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}

	switch {
	case strings.Contains(text, `"Error Message"`):
		if strings.Contains(strings.ToLower(text), "apikey") {
			return ErrInvalidAPIKey{}
		}
		return ErrSymbolNotFound{Symbol: symbol}
	case strings.Contains(text, `"Note"`):
		return ErrRateLimitExceeded{}
	case strings.Contains(text, `"Information"`):
		lower := strings.ToLower(text)
		if strings.Contains(lower, "api key") && strings.Contains(lower, "invalid") {
			return ErrInvalidAPIKey{}
		}
		return ErrRateLimitExceeded{}
	}
	return nil
}

// doRequest performs one rate-limited, circuit-broken API call.
func (c *Client) doRequest(ctx context.Context, function string, params map[string]string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrInvalidAPIKey{}
	}
	if err := c.checkRateLimit(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	q := url.Values{}
	q.Set("function", function)
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("apikey", c.apiKey)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
		}
		return body, nil
	})
	if err != nil {
		c.metrics.RecordUpstream("alphavantage", err)
		return nil, err
	}

	body := result.([]byte)
	apiErr := c.checkAPIError(body, params["symbol"])
	c.metrics.RecordUpstream("alphavantage", apiErr)
	if apiErr != nil {
		return nil, apiErr
	}

	return body, nil
}

// GetDailyAdjusted fetches TIME_SERIES_DAILY_ADJUSTED for a symbol, oldest bar first.
// outputSize is "compact" (about 100 bars) or "full".
func (c *Client) GetDailyAdjusted(ctx context.Context, symbol, outputSize string) ([]DailyPrice, error) {
	if outputSize == "" {
		outputSize = "compact"
	}
	params := map[string]string{"symbol": symbol, "outputsize": outputSize}
	key := buildCacheKey("TIME_SERIES_DAILY_ADJUSTED", params)

	if cached, ok := c.getFromCache(key); ok {
		c.log.Debug().Str("symbol", symbol).Msg("Daily series cache hit")
		return append([]DailyPrice(nil), cached.([]DailyPrice)...), nil
	}

	body, err := c.doRequest(ctx, "TIME_SERIES_DAILY_ADJUSTED", params)
	if err != nil {
		return nil, err
	}

	prices, err := parseDailyTimeSeries(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}

	c.cacheMu.RLock()
	ttl := c.cacheTTL.PriceData
	c.cacheMu.RUnlock()
	c.setCache(key, append([]DailyPrice(nil), prices...), ttl)

	c.log.Debug().
		Str("symbol", symbol).
		Int("bars", len(prices)).
		Msg("Fetched daily series")

	return prices, nil
}

// GetGlobalQuote fetches the latest quote for a symbol.
// If the API fails, returns stale persisted data if available (stale data > no data).
func (c *Client) GetGlobalQuote(ctx context.Context, symbol string) (*GlobalQuote, error) {
	params := map[string]string{"symbol": symbol}
	key := buildCacheKey("GLOBAL_QUOTE", params)

	if cached, ok := c.getFromCache(key); ok {
		q := *cached.(*GlobalQuote)
		return &q, nil
	}

	if c.cacheRepo != nil {
		var q GlobalQuote
		if ok, err := c.cacheRepo.GetIfFresh(clientdata.TableGlobalQuote, symbol, &q); err == nil && ok {
			c.log.Debug().Str("symbol", symbol).Msg("Quote cache hit")
			return &q, nil
		}
	}

	quote, err := c.fetchGlobalQuote(ctx, symbol)
	if err != nil {
		var notFound ErrSymbolNotFound
		if !errors.As(err, &notFound) {
			if stale, ok := c.getStaleQuote(symbol); ok {
				c.log.Warn().Err(err).Str("symbol", symbol).Msg("API failed, using stale cached quote")
				return stale, nil
			}
		}
		return nil, err
	}

	c.cacheMu.RLock()
	ttl := c.cacheTTL.Quotes
	c.cacheMu.RUnlock()
	stored := *quote
	c.setCache(key, &stored, ttl)

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store(clientdata.TableGlobalQuote, symbol, quote, clientdata.TTLGlobalQuote); err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache quote")
		}
	}

	return quote, nil
}

func (c *Client) fetchGlobalQuote(ctx context.Context, symbol string) (*GlobalQuote, error) {
	body, err := c.doRequest(ctx, "GLOBAL_QUOTE", map[string]string{"symbol": symbol})
	if err != nil {
		return nil, err
	}

	quote, err := parseGlobalQuote(body)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, ErrSymbolNotFound{Symbol: symbol}
	}
	return quote, nil
}

func (c *Client) getStaleQuote(symbol string) (*GlobalQuote, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}
	var q GlobalQuote
	ok, err := c.cacheRepo.Get(clientdata.TableGlobalQuote, symbol, &q)
	if err != nil || !ok {
		return nil, false
	}
	return &q, true
}

// nextMidnightUTC returns the start of the next UTC day, when the daily quota resets.
func nextMidnightUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
