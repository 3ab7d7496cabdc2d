package optimization

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/quantwand/internal/modules/history"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 3, 15, 30, 0, 0, time.UTC)

type fakeProvider struct {
	mu     sync.Mutex
	series map[string]history.PriceSeries
	err    error
	calls  []string
}

func newFakeProvider(symbols ...string) *fakeProvider {
	synth := history.NewSynthesizer(42, func() time.Time { return fixedNow })
	p := &fakeProvider{series: make(map[string]history.PriceSeries)}
	for _, sym := range symbols {
		p.series[sym] = synth.Generate(sym)
	}
	return p
}

func (p *fakeProvider) Fetch(ctx context.Context, symbol, outputSize string) (history.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, symbol)
	if p.err != nil {
		return history.Result{}, p.err
	}
	return history.Result{Symbol: symbol, Series: p.series[symbol].Clone(), Source: history.SourceSynthetic}, nil
}

type fakeArchiver struct {
	mu   sync.Mutex
	runs []string
}

func (a *fakeArchiver) Archive(ctx context.Context, result *OptimizationResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs = append(a.runs, result.RunID)
	return nil
}

func newTestService(p SeriesProvider, cfg ServiceConfig) *OptimizerService {
	sampler := NewSampler(SamplerConfig{Workers: 2, Seed: 17, RiskFreeRate: DefaultRiskFreeRate})
	svc := NewOptimizerService(p, sampler, cfg, zerolog.Nop())
	svc.SetClock(func() time.Time { return fixedNow })
	return svc
}

func TestOptimizePortfolio(t *testing.T) {
	provider := newFakeProvider("AAPL", "MSFT", "TSLA")
	svc := newTestService(provider, ServiceConfig{OptimizationSamples: 2000})

	result, err := svc.OptimizePortfolio(context.Background(), []string{" aapl", "MSFT ", "tsla"}, DefaultConstraints())
	require.NoError(t, err)

	require.Len(t, result.OptimizedWeights, 3)
	assert.Equal(t, "AAPL", result.OptimizedWeights[0].Symbol)
	assert.Equal(t, "MSFT", result.OptimizedWeights[1].Symbol)
	assert.Equal(t, "TSLA", result.OptimizedWeights[2].Symbol)
	sum := 0.0
	for _, w := range result.OptimizedWeights {
		sum += w.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	assert.True(t, result.ConstraintsSatisfied)
	assert.Equal(t, 2000, result.SampleCount)
	assert.Len(t, result.EfficientFrontier, 2000)
	assert.Len(t, result.CorrelationMatrix, 3)
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, result.Statistics.Assets)
	assert.Len(t, result.MinVariancePortfolio.Weights, 3)
	assert.LessOrEqual(t, result.MinVariancePortfolio.Risk, result.Risk)
	assert.Equal(t, history.SourceSynthetic, result.DataSources["MSFT"])
	assert.Equal(t, fixedNow, result.GeneratedAt)

	_, err = uuid.Parse(result.RunID)
	assert.NoError(t, err)

	for _, p := range result.EfficientFrontier {
		if p.Risk > 0 {
			assert.LessOrEqual(t, (p.Return-DefaultRiskFreeRate)/p.Risk, result.SharpeRatio+1e-12)
		}
	}
}

func TestOptimizePortfolio_FrontierDisplayLimit(t *testing.T) {
	svc := newTestService(newFakeProvider("AAPL", "MSFT"), ServiceConfig{OptimizationSamples: 1000, FrontierDisplayLimit: 100})

	result, err := svc.OptimizePortfolio(context.Background(), []string{"AAPL", "MSFT"}, DefaultConstraints())
	require.NoError(t, err)
	assert.Len(t, result.EfficientFrontier, 100)
	assert.Equal(t, 1000, result.SampleCount)
}

func TestOptimizePortfolio_InfeasibleConstraintsFallBack(t *testing.T) {
	svc := newTestService(newFakeProvider("AAPL", "MSFT", "AMZN"), ServiceConfig{OptimizationSamples: 1000})
	ctx := context.Background()

	// three weights in [0.45, 0.46] cannot sum to 1
	constrained, err := svc.OptimizePortfolio(ctx, []string{"AAPL", "MSFT", "AMZN"}, Constraints{MinWeight: 0.45, MaxWeight: 0.46})
	require.NoError(t, err)
	assert.False(t, constrained.ConstraintsSatisfied)

	free, err := svc.OptimizePortfolio(ctx, []string{"AAPL", "MSFT", "AMZN"}, DefaultConstraints())
	require.NoError(t, err)
	assert.Equal(t, free.OptimizedWeights, constrained.OptimizedWeights)
	assert.Equal(t, free.SharpeRatio, constrained.SharpeRatio)
}

func TestOptimizePortfolio_RespectsConstraints(t *testing.T) {
	svc := newTestService(newFakeProvider("AAPL", "MSFT"), ServiceConfig{OptimizationSamples: 2000})

	c := Constraints{MinWeight: 0.3, MaxWeight: 0.7}
	result, err := svc.OptimizePortfolio(context.Background(), []string{"AAPL", "MSFT"}, c)
	require.NoError(t, err)
	require.True(t, result.ConstraintsSatisfied)
	for _, w := range result.OptimizedWeights {
		assert.GreaterOrEqual(t, w.Weight, 0.3)
		assert.LessOrEqual(t, w.Weight, 0.7)
	}
}

func TestOptimizePortfolio_InvalidInput(t *testing.T) {
	provider := newFakeProvider("AAPL")
	svc := newTestService(provider, ServiceConfig{OptimizationSamples: 100})
	ctx := context.Background()

	_, err := svc.OptimizePortfolio(ctx, []string{"AAPL"}, Constraints{MinWeight: 0.8, MaxWeight: 0.2})
	assert.ErrorIs(t, err, ErrInvalidConstraints)

	_, err = svc.OptimizePortfolio(ctx, nil, DefaultConstraints())
	assert.ErrorIs(t, err, ErrInvalidAssets)

	_, err = svc.OptimizePortfolio(ctx, []string{"aapl", "AAPL"}, DefaultConstraints())
	assert.ErrorIs(t, err, ErrInvalidAssets)

	_, err = svc.OptimizePortfolio(ctx, []string{"AAPL", "  "}, DefaultConstraints())
	assert.ErrorIs(t, err, ErrInvalidAssets)

	assert.Empty(t, provider.calls)
}

func TestOptimizePortfolio_InsufficientHistory(t *testing.T) {
	provider := newFakeProvider("AAPL")
	provider.series["NEW"] = history.PriceSeries{{Date: fixedNow, Price: 10}}
	svc := newTestService(provider, ServiceConfig{OptimizationSamples: 100})

	_, err := svc.OptimizePortfolio(context.Background(), []string{"AAPL", "NEW"}, DefaultConstraints())
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestOptimizePortfolio_NoViablePortfolio(t *testing.T) {
	provider := &fakeProvider{series: map[string]history.PriceSeries{}}
	flat := make(history.PriceSeries, 30)
	for i := range flat {
		flat[i] = history.PricePoint{Date: fixedNow.AddDate(0, 0, i-29), Price: 100}
	}
	provider.series["FLAT"] = flat
	svc := newTestService(provider, ServiceConfig{OptimizationSamples: 100})

	_, err := svc.OptimizePortfolio(context.Background(), []string{"FLAT"}, DefaultConstraints())
	assert.ErrorIs(t, err, ErrNoViablePortfolio)
}

func TestOptimizePortfolio_ProviderError(t *testing.T) {
	provider := newFakeProvider("AAPL")
	provider.err = context.DeadlineExceeded
	svc := newTestService(provider, ServiceConfig{OptimizationSamples: 100})

	_, err := svc.OptimizePortfolio(context.Background(), []string{"AAPL"}, DefaultConstraints())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestOptimizePortfolio_Archives(t *testing.T) {
	archiver := &fakeArchiver{}
	svc := newTestService(newFakeProvider("AAPL", "MSFT"), ServiceConfig{OptimizationSamples: 200})
	svc.SetArchiver(archiver)

	result, err := svc.OptimizePortfolio(context.Background(), []string{"AAPL", "MSFT"}, DefaultConstraints())
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, []string{result.RunID}, archiver.runs)
}

func TestMonteCarloSimulation(t *testing.T) {
	svc := newTestService(newFakeProvider("AAPL", "GOOGL"), ServiceConfig{SimulationSamples: 500})

	result, err := svc.MonteCarloSimulation(context.Background(), []string{"AAPL", "GOOGL"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 500, result.SampleCount)
	require.Len(t, result.Samples, 500)

	best, ok := SelectMaxSharpe(result.Samples)
	require.True(t, ok)
	assert.Equal(t, result.Samples[best], result.OptimalPortfolio)
	low, _ := SelectMinVariance(result.Samples)
	assert.Equal(t, result.Samples[low], result.MinVariancePortfolio)

	// covariance is consistent with the annualized volatilities
	for i := range result.CovarianceMatrix {
		daily := result.Statistics.Volatilities[i] * result.Statistics.Volatilities[i] / TradingDaysPerYear
		assert.InDelta(t, daily, result.CovarianceMatrix[i][i], 1e-12)
	}
}

func TestMonteCarloSimulation_Progress(t *testing.T) {
	svc := newTestService(newFakeProvider("AAPL", "GOOGL"), ServiceConfig{})

	last := 0
	result, err := svc.MonteCarloSimulationWithProgress(context.Background(), []string{"AAPL", "GOOGL"}, 1200, func(completed, total int) {
		assert.Equal(t, 1200, total)
		last = completed
	})
	require.NoError(t, err)
	assert.Equal(t, 1200, last)
	assert.Equal(t, 1200, result.SampleCount)
}

func TestMonteCarloSimulation_InvalidCount(t *testing.T) {
	svc := newTestService(newFakeProvider("AAPL"), ServiceConfig{})

	_, err := svc.MonteCarloSimulation(context.Background(), []string{"AAPL"}, -1)
	assert.ErrorIs(t, err, ErrInvalidSampleCount)
	_, err = svc.MonteCarloSimulation(context.Background(), []string{"AAPL"}, MaxSampleCount+1)
	assert.ErrorIs(t, err, ErrInvalidSampleCount)
}

func TestFrontierStride(t *testing.T) {
	samples := make([]PortfolioSample, 10)
	for i := range samples {
		samples[i] = PortfolioSample{Return: float64(i)}
	}
	pts := frontier(samples, 4)
	require.Len(t, pts, 4)
	assert.Equal(t, []float64{0, 2, 5, 7}, []float64{pts[0].Return, pts[1].Return, pts[2].Return, pts[3].Return})
	assert.Len(t, frontier(samples, 0), 10)
	assert.Len(t, frontier(samples, 50), 10)
}
