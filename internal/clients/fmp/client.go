// Package fmp provides a client for FinancialModelingPrep fundamentals.
package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aristath/quantwand/internal/clientdata"
	"github.com/aristath/quantwand/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const (
	defaultBaseURL = "https://financialmodelingprep.com/api/v3"
	statementLimit = 5
)

// Client is the FinancialModelingPrep API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
	cacheRepo  *clientdata.Repository
	metrics    *metrics.Registry
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a new FMP client. cacheRepo and m are optional.
func NewClient(apiKey string, cacheRepo *clientdata.Repository, m *metrics.Registry, log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log:       log.With().Str("client", "fmp").Logger(),
		cacheRepo: cacheRepo,
		metrics:   m,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "fmp",
			Timeout: 60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// SetBaseURL overrides the API endpoint (used by tests).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// GetIncomeStatements returns the last five annual income statements as the
// raw JSON array FMP produces. If the API fails, stale cached data is used.
func (c *Client) GetIncomeStatements(ctx context.Context, symbol string) (json.RawMessage, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if c.cacheRepo != nil {
		var cached []byte
		if ok, err := c.cacheRepo.GetIfFresh(clientdata.TableFinancials, symbol, &cached); err == nil && ok {
			c.log.Debug().Str("symbol", symbol).Msg("Cache hit")
			return json.RawMessage(cached), nil
		}
	}

	body, err := c.fetch(ctx, symbol)
	c.metrics.RecordUpstream("fmp", err)
	if err != nil {
		if c.cacheRepo != nil {
			var stale []byte
			if ok, cerr := c.cacheRepo.Get(clientdata.TableFinancials, symbol, &stale); cerr == nil && ok {
				c.log.Warn().Err(err).Str("symbol", symbol).Msg("API failed, using stale cached statements")
				return json.RawMessage(stale), nil
			}
		}
		return nil, err
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store(clientdata.TableFinancials, symbol, []byte(body), clientdata.TTLFinancials); err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache statements")
		}
	}

	return body, nil
}

func (c *Client) fetch(ctx context.Context, symbol string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(statementLimit))
	q.Set("apikey", c.apiKey)
	endpoint := fmt.Sprintf("%s/income-statement/%s?%s", c.baseURL, url.PathEscape(symbol), q.Encode())

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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
		return nil, err
	}

	body := result.([]byte)
	if !json.Valid(body) {
		return nil, fmt.Errorf("API returned invalid JSON")
	}

	// FMP reports errors as an object instead of the statement array
	var apiErr struct {
		Message string `json:"Error Message"`
	}
	if len(body) > 0 && body[0] == '{' && json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		return nil, fmt.Errorf("API error: %s", apiErr.Message)
	}

	return json.RawMessage(body), nil
}
