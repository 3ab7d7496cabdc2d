package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/quantwand/internal/clients/alphavantage"
	"github.com/aristath/quantwand/internal/clients/coingecko"
	"github.com/aristath/quantwand/internal/metrics"
	"github.com/aristath/quantwand/internal/modules/history"
	"github.com/aristath/quantwand/internal/modules/optimization"
	"github.com/aristath/quantwand/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQuotes struct{}

func (stubQuotes) GetGlobalQuote(ctx context.Context, symbol string) (*alphavantage.GlobalQuote, error) {
	return nil, alphavantage.ErrSymbolNotFound{Symbol: symbol}
}

func (stubQuotes) GetRemainingRequests() int { return 17 }

type stubCrypto struct{}

func (stubCrypto) GetPrice(ctx context.Context, id string) (*coingecko.Price, error) {
	return &coingecko.Price{ID: id, Price: 3100, Change24h: 2.5}, nil
}

type stubFinancials struct{}

func (stubFinancials) GetIncomeStatements(ctx context.Context, symbol string) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

type stubSeries struct {
	synth *history.Synthesizer
}

func (s stubSeries) Fetch(ctx context.Context, symbol, outputSize string) (history.Result, error) {
	return history.Result{Symbol: symbol, Series: s.synth.Generate(symbol), Source: history.SourceSynthetic}, nil
}

type stubCacheStats struct{}

func (stubCacheStats) CacheStats() history.CacheStats {
	return history.CacheStats{Entries: 3, Capacity: 256, Hits: 10, Misses: 4}
}

type stubJobs struct{}

func (stubJobs) Status() []scheduler.JobStatus {
	return []scheduler.JobStatus{
		{Name: "client_data_cleanup", Schedule: "@hourly", Runs: 2},
		{Name: "database_maintenance", Schedule: "@daily", Runs: 1, LastError: "disk low"},
	}
}

func newTestServer(t *testing.T, withOptimizer bool) (*Server, *metrics.Registry) {
	t.Helper()

	log := zerolog.New(nil).Level(zerolog.Disabled)
	now := func() time.Time { return time.Date(2024, 6, 3, 15, 30, 0, 0, time.UTC) }
	series := stubSeries{synth: history.NewSynthesizer(42, now)}
	reg := metrics.NewRegistry()

	cfg := Config{
		Log:        log,
		Port:       0,
		DevMode:    true,
		Metrics:    reg,
		Quotes:     stubQuotes{},
		Crypto:     stubCrypto{},
		Financials: stubFinancials{},
		Series:     series,
		CacheStats: stubCacheStats{},
		Jobs:       stubJobs{},
		Quota:      stubQuotes{},
	}
	if withOptimizer {
		sampler := optimization.NewSampler(optimization.SamplerConfig{Workers: 2, Seed: 7})
		cfg.Optimizer = optimization.NewOptimizerService(series, sampler, optimization.ServiceConfig{
			OptimizationSamples:  2000,
			FrontierDisplayLimit: 100,
		}, log)
	}

	return New(cfg), reg
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "QuantWand API is running!", body["status"])
	_, err := time.Parse(time.RFC3339Nano, body["timestamp"])
	assert.NoError(t, err)
}

func TestSystemStatus(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body SystemStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Greater(t, body.Goroutines, 0)
	require.NotNil(t, body.HistoryCache)
	assert.Equal(t, 3, body.HistoryCache.Entries)
	assert.Equal(t, uint64(10), body.HistoryCache.Hits)
	require.NotNil(t, body.UpstreamRemaining)
	assert.Equal(t, 17, *body.UpstreamRemaining)
}

func TestJobsStatus(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/system/jobs", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body JobsStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.TotalJobs)
	assert.Equal(t, "client_data_cleanup", body.Jobs[0].Name)
	assert.Equal(t, "disk low", body.Jobs[1].LastError)
}

func TestDatabaseStats_NotConfigured(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/system/database/stats", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, false)
	handler := srv.Handler()

	// generate one observed request first
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "quantwand_")
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodOptions, "/api/portfolio/optimize", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestMarketRoutesMounted(t *testing.T) {
	srv, _ := newTestServer(t, false)
	handler := srv.Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/crypto/price/ethereum", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var price coingecko.Price
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &price))
	assert.Equal(t, "ethereum", price.ID)
	assert.Equal(t, 3100.0, price.Price)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stocks/price/NOPE", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOptimizeRoute(t *testing.T) {
	srv, _ := newTestServer(t, true)

	body := strings.NewReader(`{"assets":["AAPL","MSFT","GOOGL"],"constraints":{"minWeight":0,"maxWeight":1}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/portfolio/optimize", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result optimization.OptimizationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.OptimizedWeights, 3)
	assert.Equal(t, "AAPL", result.OptimizedWeights[0].Symbol)
	assert.Len(t, result.EfficientFrontier, 100)
	assert.Equal(t, 2000, result.SampleCount)

	sum := 0.0
	for _, aw := range result.OptimizedWeights {
		sum += aw.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestOptimizeRoute_NotMountedWithoutService(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/portfolio/optimize", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
