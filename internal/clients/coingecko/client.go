// Package coingecko provides a client for CoinGecko's simple price API.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aristath/quantwand/internal/clientdata"
	"github.com/aristath/quantwand/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// ErrNotFound is returned when CoinGecko has no price for the coin id.
var ErrNotFound = errors.New("coin not found")

// Price is the USD price of one coin.
type Price struct {
	ID        string  `json:"id" msgpack:"id"`
	Price     float64 `json:"price" msgpack:"price"`
	Change24h float64 `json:"change24h" msgpack:"change24h"`
}

// Client is the CoinGecko API client.
type Client struct {
	baseURL    string
	apiKey     string // Optional demo key
	httpClient *http.Client
	log        zerolog.Logger
	cacheRepo  *clientdata.Repository
	metrics    *metrics.Registry
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a new CoinGecko client.
// cacheRepo and m are optional.
func NewClient(apiKey string, cacheRepo *clientdata.Repository, m *metrics.Registry, log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log:       log.With().Str("client", "coingecko").Logger(),
		cacheRepo: cacheRepo,
		metrics:   m,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "coingecko",
			Timeout: 30 * time.Second,
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

// GetPrice fetches the USD price and 24h change for a coin id (e.g. "bitcoin").
// If the API fails, returns stale cached data if available.
func (c *Client) GetPrice(ctx context.Context, id string) (*Price, error) {
	id = strings.ToLower(strings.TrimSpace(id))

	if c.cacheRepo != nil {
		var cached Price
		if ok, err := c.cacheRepo.GetIfFresh(clientdata.TableCryptoPrice, id, &cached); err == nil && ok {
			c.log.Debug().Str("id", id).Msg("Cache hit")
			return &cached, nil
		}
	}

	price, err := c.fetch(ctx, id)
	c.metrics.RecordUpstream("coingecko", err)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			if stale, ok := c.getStale(id); ok {
				c.log.Warn().Err(err).Str("id", id).Msg("API failed, using stale cached price")
				return stale, nil
			}
		}
		return nil, err
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store(clientdata.TableCryptoPrice, id, price, clientdata.TTLCryptoPrice); err != nil {
			c.log.Warn().Err(err).Str("id", id).Msg("Failed to cache price")
		}
	}

	return price, nil
}

func (c *Client) fetch(ctx context.Context, id string) (*Price, error) {
	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("x-cg-demo-api-key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
		}

		var body map[string]map[string]float64
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}

	data, ok := result.(map[string]map[string]float64)[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	return &Price{
		ID:        id,
		Price:     data["usd"],
		Change24h: data["usd_24h_change"],
	}, nil
}

func (c *Client) getStale(id string) (*Price, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}
	var p Price
	ok, err := c.cacheRepo.Get(clientdata.TableCryptoPrice, id, &p)
	if err != nil || !ok {
		return nil, false
	}
	return &p, true
}
