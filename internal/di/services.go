package di

import (
	"context"
	"fmt"

	"github.com/aristath/quantwand/internal/clients/alphavantage"
	"github.com/aristath/quantwand/internal/clients/coingecko"
	"github.com/aristath/quantwand/internal/clients/fmp"
	"github.com/aristath/quantwand/internal/config"
	"github.com/aristath/quantwand/internal/metrics"
	"github.com/aristath/quantwand/internal/modules/history"
	"github.com/aristath/quantwand/internal/modules/optimization"
	"github.com/aristath/quantwand/internal/reliability"
	"github.com/aristath/quantwand/internal/scheduler"
	"github.com/rs/zerolog"
)

// InitializeServices creates clients and services. Requires InitializeDatabases.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Metrics = metrics.NewRegistry()

	// Alpha Vantage: daily history and global quotes
	av := alphavantage.NewClient(cfg.AlphaVantageAPIKey, log)
	av.SetLimits(cfg.AlphaVantageDailyLimit, cfg.AlphaVantageRequestsPerMinute)
	av.SetCacheRepo(container.ClientDataRepo)
	av.SetMetrics(container.Metrics)
	container.AlphaVantage = av
	if cfg.AlphaVantageAPIKey == "" {
		log.Warn().Msg("ALPHA_VANTAGE_API_KEY not set, price history will be synthetic")
	}

	container.CoinGecko = coingecko.NewClient(cfg.CoinGeckoAPIKey, container.ClientDataRepo, container.Metrics, log)
	container.FMP = fmp.NewClient(cfg.FMPAPIKey, container.ClientDataRepo, container.Metrics, log)

	cacheCfg := cfg.Cache
	if cacheCfg == nil {
		cacheCfg = &config.CacheConfig{}
	}
	provider := history.NewProvider(history.NewAlphaVantageFetcher(av), history.ProviderConfig{
		CacheSize: cacheCfg.HistorySize,
		CacheTTL:  cacheCfg.HistoryTTL,
	}, log)
	provider.SetPersistentCache(container.ClientDataRepo)
	provider.SetMetrics(container.Metrics)
	container.HistoryProvider = provider

	optCfg := cfg.Optimizer
	if optCfg == nil {
		optCfg = &config.OptimizerConfig{RiskFreeRate: optimization.DefaultRiskFreeRate}
	}
	container.Sampler = optimization.NewSampler(optimization.SamplerConfig{
		Workers:      optCfg.Workers,
		Seed:         optCfg.Seed,
		RiskFreeRate: optCfg.RiskFreeRate,
	})

	svc := optimization.NewOptimizerService(provider, container.Sampler, optimization.ServiceConfig{
		OptimizationSamples:  optCfg.OptimizationSamples,
		SimulationSamples:    optCfg.SimulationSamples,
		FrontierDisplayLimit: optCfg.FrontierDisplayLimit,
	}, log)
	svc.SetMetrics(container.Metrics)
	container.OptimizerService = svc

	if cfg.Archive.Enabled() {
		archive, err := reliability.NewResultArchive(ctx, reliability.ArchiveConfig{
			Bucket:          cfg.Archive.Bucket,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			Region:          cfg.Archive.Region,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize result archive: %w", err)
		}
		svc.SetArchiver(archive)
		container.ResultArchive = archive
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Result archive enabled")
	}

	container.Scheduler = scheduler.New(log, container.Metrics)

	return nil
}
