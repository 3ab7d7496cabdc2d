package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/quantwand/internal/clientdata"
	"github.com/aristath/quantwand/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Default provider settings
const (
	DefaultOutputSize = "compact"
	DefaultCacheTTL   = time.Hour
	DefaultCacheSize  = 256
)

// ProviderConfig configures a Provider. Zero values select defaults.
type ProviderConfig struct {
	CacheSize int
	CacheTTL  time.Duration
	Seed      int64            // synthetic generator seed, 0 = time based
	Now       func() time.Time // clock for cache expiry and synthetic dates
}

// Provider serves daily price series. Lookup order: memory cache, persistent
// cache, upstream, stale persistent entry, synthetic series. Concurrent misses
// for the same key share one upstream call. Synthetic and stale data are never
// cached.
type Provider struct {
	fetcher SeriesFetcher
	cache   *Cache
	synth   *Synthesizer
	group   singleflight.Group
	repo    *clientdata.Repository
	metrics *metrics.Registry
	log     zerolog.Logger
}

// NewProvider creates a provider. fetcher may be nil, in which case every
// miss falls through to the synthetic generator.
func NewProvider(fetcher SeriesFetcher, cfg ProviderConfig, log zerolog.Logger) *Provider {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Provider{
		fetcher: fetcher,
		cache:   NewCache(cfg.CacheSize, cfg.CacheTTL, cfg.Now),
		synth:   NewSynthesizer(cfg.Seed, cfg.Now),
		log:     log.With().Str("component", "history_provider").Logger(),
	}
}

// SetPersistentCache enables the SQLite second-level cache.
func (p *Provider) SetPersistentCache(repo *clientdata.Repository) {
	p.repo = repo
}

// SetMetrics enables cache and fallback instrumentation.
func (p *Provider) SetMetrics(m *metrics.Registry) {
	p.metrics = m
}

// CacheStats returns the in-memory cache counters.
func (p *Provider) CacheStats() CacheStats {
	return p.cache.Stats()
}

// FetchSeries returns the daily series for a symbol. Upstream failures are
// absorbed; the only errors are an empty symbol and context cancellation.
func (p *Provider) FetchSeries(ctx context.Context, symbol, outputSize string) (PriceSeries, error) {
	res, err := p.Fetch(ctx, symbol, outputSize)
	if err != nil {
		return nil, err
	}
	return res.Series, nil
}

// Fetch is FetchSeries with provenance.
func (p *Provider) Fetch(ctx context.Context, symbol, outputSize string) (Result, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Result{}, fmt.Errorf("empty symbol")
	}
	if outputSize == "" {
		outputSize = DefaultOutputSize
	}
	key := CacheKey(symbol, outputSize)

	if series, ok := p.cache.Get(key); ok {
		p.metrics.RecordHistoryLookup("memory", true)
		p.log.Debug().Str("key", key).Msg("Cache hit")
		return Result{Symbol: symbol, Series: series, Source: SourceMemory}, nil
	}
	p.metrics.RecordHistoryLookup("memory", false)

	// The shared flight must not die with the first caller's context
	flightCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan(key, func() (interface{}, error) {
		return p.load(flightCtx, symbol, outputSize, key), nil
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		res := r.Val.(Result)
		res.Series = res.Series.Clone()
		return res, nil
	}
}

// load runs once per key per flight and always produces a series.
func (p *Provider) load(ctx context.Context, symbol, outputSize, key string) Result {
	// Another flight may have filled the cache while this one was queued
	if series, ok := p.cache.Get(key); ok {
		return Result{Symbol: symbol, Series: series, Source: SourceMemory}
	}

	if series, ok := p.loadPersistent(key, true); ok {
		p.metrics.RecordHistoryLookup("persistent", true)
		p.cache.Set(key, series)
		return Result{Symbol: symbol, Series: series, Source: SourcePersistent}
	}
	p.metrics.RecordHistoryLookup("persistent", false)

	series, err := p.fetchUpstream(ctx, symbol, outputSize)
	if err == nil {
		p.cache.Set(key, series)
		p.storePersistent(key, series)
		return Result{Symbol: symbol, Series: series, Source: SourceUpstream}
	}

	if stale, ok := p.loadPersistent(key, false); ok {
		p.metrics.RecordHistoryFallback("stale")
		p.log.Warn().Err(err).Str("symbol", symbol).Msg("Upstream failed, using stale cached series")
		return Result{Symbol: symbol, Series: stale, Source: SourceStale}
	}

	p.metrics.RecordHistoryFallback("synthetic")
	p.log.Warn().Err(err).Str("symbol", symbol).Msg("Upstream failed, generating synthetic series")
	return Result{Symbol: symbol, Series: p.synth.Generate(symbol), Source: SourceSynthetic}
}

func (p *Provider) fetchUpstream(ctx context.Context, symbol, outputSize string) (PriceSeries, error) {
	if p.fetcher == nil {
		return nil, fmt.Errorf("%w: no upstream configured", ErrDataUnavailable)
	}

	series, err := p.fetcher.FetchDaily(ctx, symbol, outputSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDataUnavailable, symbol, err)
	}

	series = sanitize(series)
	if len(series) < 2 {
		return nil, fmt.Errorf("%w: %s: only %d usable points", ErrDataUnavailable, symbol, len(series))
	}

	return series, nil
}

// sanitize keeps positive prices on strictly increasing dates.
func sanitize(series PriceSeries) PriceSeries {
	out := make(PriceSeries, 0, len(series))
	for _, pt := range series {
		if !(pt.Price > 0) {
			continue
		}
		if n := len(out); n > 0 && !pt.Date.After(out[n-1].Date) {
			continue
		}
		out = append(out, pt)
	}
	return out
}

func (p *Provider) loadPersistent(key string, freshOnly bool) (PriceSeries, bool) {
	if p.repo == nil {
		return nil, false
	}

	var (
		series PriceSeries
		ok     bool
		err    error
	)
	if freshOnly {
		ok, err = p.repo.GetIfFresh(clientdata.TablePriceHistory, key, &series)
	} else {
		ok, err = p.repo.Get(clientdata.TablePriceHistory, key, &series)
	}
	if err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("Failed to read persistent cache")
		return nil, false
	}
	if !ok || len(series) < 2 {
		return nil, false
	}
	for i := range series {
		series[i].Date = series[i].Date.UTC()
	}
	if series.Validate() != nil {
		return nil, false
	}
	return series, true
}

func (p *Provider) storePersistent(key string, series PriceSeries) {
	if p.repo == nil {
		return
	}
	if err := p.repo.Store(clientdata.TablePriceHistory, key, series, clientdata.TTLPriceHistory); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("Failed to write persistent cache")
	}
}
