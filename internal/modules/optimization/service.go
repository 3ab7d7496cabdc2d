package optimization

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aristath/quantwand/internal/metrics"
	"github.com/aristath/quantwand/internal/modules/history"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SeriesProvider supplies daily price series with provenance.
type SeriesProvider interface {
	Fetch(ctx context.Context, symbol, outputSize string) (history.Result, error)
}

// ResultArchiver persists finished optimization runs.
type ResultArchiver interface {
	Archive(ctx context.Context, result *OptimizationResult) error
}

// ServiceConfig configures an OptimizerService. Zero values select defaults.
type ServiceConfig struct {
	OptimizationSamples  int
	SimulationSamples    int
	FrontierDisplayLimit int // 0 = return every sample on the frontier
	OutputSize           string
	ArchiveTimeout       time.Duration
}

// OptimizerService runs the full pipeline: fetch series, align, compute
// returns and statistics, sample, select.
type OptimizerService struct {
	provider SeriesProvider
	sampler  *Sampler
	cfg      ServiceConfig
	archiver ResultArchiver
	metrics  *metrics.Registry
	now      func() time.Time
	archives sync.WaitGroup
	log      zerolog.Logger
}

// NewOptimizerService creates the facade.
func NewOptimizerService(provider SeriesProvider, sampler *Sampler, cfg ServiceConfig, log zerolog.Logger) *OptimizerService {
	if cfg.OptimizationSamples <= 0 {
		cfg.OptimizationSamples = DefaultOptimizationCount
	}
	if cfg.SimulationSamples <= 0 {
		cfg.SimulationSamples = DefaultSimulationCount
	}
	if cfg.OutputSize == "" {
		cfg.OutputSize = history.DefaultOutputSize
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = 30 * time.Second
	}
	return &OptimizerService{
		provider: provider,
		sampler:  sampler,
		cfg:      cfg,
		now:      time.Now,
		log:      log.With().Str("component", "optimizer").Logger(),
	}
}

// SetArchiver enables asynchronous upload of optimization results.
func (s *OptimizerService) SetArchiver(a ResultArchiver) {
	s.archiver = a
}

// SetMetrics enables run instrumentation.
func (s *OptimizerService) SetMetrics(m *metrics.Registry) {
	s.metrics = m
}

// SetClock overrides the clock used for result timestamps.
func (s *OptimizerService) SetClock(now func() time.Time) {
	s.now = now
}

// Wait blocks until pending archive uploads finish.
func (s *OptimizerService) Wait() {
	s.archives.Wait()
}

// NormalizeAssets trims and upper-cases symbols and rejects empty lists,
// blank entries and duplicates.
func NormalizeAssets(assets []string) ([]string, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: at least one asset is required", ErrInvalidAssets)
	}

	out := make([]string, 0, len(assets))
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		sym := strings.ToUpper(strings.TrimSpace(a))
		if sym == "" {
			return nil, fmt.Errorf("%w: blank symbol", ErrInvalidAssets)
		}
		if _, dup := seen[sym]; dup {
			return nil, fmt.Errorf("%w: duplicate symbol %s", ErrInvalidAssets, sym)
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out, nil
}

// MonteCarloSimulation runs the diagnostic path and returns every sample.
// numSimulations 0 selects the configured simulation count.
func (s *OptimizerService) MonteCarloSimulation(ctx context.Context, assets []string, numSimulations int) (*SimulationResult, error) {
	return s.MonteCarloSimulationWithProgress(ctx, assets, numSimulations, nil)
}

// MonteCarloSimulationWithProgress is MonteCarloSimulation with a per-batch
// progress callback.
func (s *OptimizerService) MonteCarloSimulationWithProgress(
	ctx context.Context,
	assets []string,
	numSimulations int,
	progress ProgressFunc,
) (result *SimulationResult, err error) {
	defer func() { s.metrics.RecordOptimizerRun("simulate", err) }()

	if numSimulations == 0 {
		numSimulations = s.cfg.SimulationSamples
	}
	run, err := s.simulate(ctx, assets, numSimulations, progress)
	if err != nil {
		return nil, err
	}

	maxIdx, ok := SelectMaxSharpe(run.samples)
	if !ok {
		return nil, ErrNoViablePortfolio
	}
	minIdx, _ := SelectMinVariance(run.samples)

	return &SimulationResult{
		RunID:                run.id,
		Assets:               run.assets,
		OptimalPortfolio:     run.samples[maxIdx],
		MinVariancePortfolio: run.samples[minIdx],
		Samples:              run.samples,
		CorrelationMatrix:    run.correlation,
		CovarianceMatrix:     run.covariance,
		Statistics:           annualize(run.stats, run.assets),
		DataSources:          run.sources,
		SampleCount:          len(run.samples),
		GeneratedAt:          run.generatedAt,
	}, nil
}

// OptimizePortfolio runs the full path and selects the max-Sharpe portfolio
// within the weight bounds, falling back to the unconstrained optimum when no
// sample satisfies them.
func (s *OptimizerService) OptimizePortfolio(ctx context.Context, assets []string, constraints Constraints) (result *OptimizationResult, err error) {
	defer func() { s.metrics.RecordOptimizerRun("optimize", err) }()

	if err := constraints.Validate(); err != nil {
		return nil, err
	}

	run, err := s.simulate(ctx, assets, s.cfg.OptimizationSamples, nil)
	if err != nil {
		return nil, err
	}

	maxIdx, ok := SelectMaxSharpe(run.samples)
	if !ok {
		return nil, ErrNoViablePortfolio
	}
	satisfied := true
	chosen, found := SelectConstrained(run.samples, constraints)
	if !found {
		satisfied = false
		chosen = maxIdx
		s.log.Warn().
			Str("run_id", run.id).
			Float64("min_weight", constraints.MinWeight).
			Float64("max_weight", constraints.MaxWeight).
			Msg("No sample satisfies constraints, using unconstrained optimum")
	}
	minIdx, _ := SelectMinVariance(run.samples)

	best := run.samples[chosen]
	weights := make([]AssetWeight, len(run.assets))
	for i, sym := range run.assets {
		weights[i] = AssetWeight{Symbol: sym, Weight: best.Weights[i]}
	}
	minVar := run.samples[minIdx]

	result = &OptimizationResult{
		RunID:                run.id,
		OptimizedWeights:     weights,
		ExpectedReturn:       best.Return,
		Risk:                 best.Risk,
		SharpeRatio:          best.SharpeRatio,
		Constraints:          constraints,
		ConstraintsSatisfied: satisfied,
		CorrelationMatrix:    run.correlation,
		EfficientFrontier:    frontier(run.samples, s.cfg.FrontierDisplayLimit),
		MinVariancePortfolio: MinVariancePortfolio{
			Weights: minVar.Weights,
			Return:  minVar.Return,
			Risk:    minVar.Risk,
		},
		Statistics:  annualize(run.stats, run.assets),
		DataSources: run.sources,
		SampleCount: len(run.samples),
		GeneratedAt: run.generatedAt,
	}

	s.log.Info().
		Str("run_id", run.id).
		Strs("assets", run.assets).
		Float64("sharpe", best.SharpeRatio).
		Bool("constraints_satisfied", satisfied).
		Msg("Portfolio optimized")

	s.archive(ctx, result)
	return result, nil
}

// simulation is the shared intermediate state of both paths.
type simulation struct {
	id          string
	assets      []string
	sources     map[string]history.Source
	stats       []AssetStatistics
	correlation [][]float64
	covariance  [][]float64
	samples     []PortfolioSample
	generatedAt time.Time
}

func (s *OptimizerService) simulate(ctx context.Context, assets []string, count int, progress ProgressFunc) (*simulation, error) {
	if count < 0 || count > MaxSampleCount {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrInvalidSampleCount, count, MaxSampleCount)
	}
	symbols, err := NormalizeAssets(assets)
	if err != nil {
		return nil, err
	}

	results, err := s.fetchAll(ctx, symbols)
	if err != nil {
		return nil, err
	}

	series := make([]history.PriceSeries, len(results))
	sources := make(map[string]history.Source, len(results))
	for i, r := range results {
		if len(r.Series) < 2 {
			return nil, fmt.Errorf("%w: %s has %d prices", ErrInsufficientHistory, symbols[i], len(r.Series))
		}
		series[i] = r.Series
		sources[symbols[i]] = r.Source
	}

	prices, err := AlignSeries(series)
	if err != nil {
		return nil, err
	}

	returns := make([][]float64, len(prices))
	stats := make([]AssetStatistics, len(prices))
	means := make([]float64, len(prices))
	stdDevs := make([]float64, len(prices))
	for i, p := range prices {
		r, err := ComputeReturns(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", symbols[i], err)
		}
		returns[i] = r
		stats[i] = ComputeAssetStatistics(r)
		means[i] = stats[i].Mean
		stdDevs[i] = stats[i].StdDev
	}

	corr := BuildCorrelationMatrix(returns)
	cov := BuildCovarianceMatrix(corr, stdDevs)

	start := time.Now()
	samples, err := s.sampler.SampleWithProgress(ctx, means, cov, count, progress)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSampling(time.Since(start), len(samples))

	s.log.Debug().
		Strs("assets", symbols).
		Int("observations", len(returns[0])).
		Int("samples", len(samples)).
		Dur("duration", time.Since(start)).
		Msg("Sampling complete")

	return &simulation{
		id:          uuid.New().String(),
		assets:      symbols,
		sources:     sources,
		stats:       stats,
		correlation: corr,
		covariance:  cov,
		samples:     samples,
		generatedAt: s.now().UTC(),
	}, nil
}

// fetchAll loads every symbol concurrently, keeping input order.
func (s *OptimizerService) fetchAll(ctx context.Context, symbols []string) ([]history.Result, error) {
	results := make([]history.Result, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			res, err := s.provider.Fetch(gctx, sym, s.cfg.OutputSize)
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", sym, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *OptimizerService) archive(ctx context.Context, result *OptimizationResult) {
	if s.archiver == nil {
		return
	}
	s.archives.Add(1)
	go func() {
		defer s.archives.Done()
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ArchiveTimeout)
		defer cancel()
		if err := s.archiver.Archive(actx, result); err != nil {
			s.log.Error().Err(err).Str("run_id", result.RunID).Msg("Failed to archive optimization result")
		}
	}()
}

// frontier projects samples to (return, risk), thinning to at most limit
// points with an even stride when limit > 0.
func frontier(samples []PortfolioSample, limit int) []FrontierPoint {
	n := len(samples)
	if limit <= 0 || limit >= n {
		out := make([]FrontierPoint, n)
		for i, p := range samples {
			out[i] = FrontierPoint{Return: p.Return, Risk: p.Risk}
		}
		return out
	}

	out := make([]FrontierPoint, limit)
	for k := 0; k < limit; k++ {
		p := samples[k*n/limit]
		out[k] = FrontierPoint{Return: p.Return, Risk: p.Risk}
	}
	return out
}
