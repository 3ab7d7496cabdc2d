package optimization

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultBatchSize is the number of samples drawn between cancellation checks
// and progress reports.
const DefaultBatchSize = 500

// ProgressFunc receives the number of completed samples out of total. Calls
// are serialized and completed is non-decreasing.
type ProgressFunc func(completed, total int)

// SamplerConfig configures a Sampler. Zero values select defaults.
type SamplerConfig struct {
	Workers      int
	Seed         int64 // 0 = time based, a new base seed per run
	BatchSize    int
	RiskFreeRate float64
}

// Sampler draws random long-only portfolios and evaluates them against a
// mean vector and covariance matrix.
type Sampler struct {
	workers   int
	seed      int64
	batchSize int
	rf        float64
}

// NewSampler creates a sampler. A zero RiskFreeRate is taken literally; use
// DefaultRiskFreeRate explicitly for the usual 4%.
func NewSampler(cfg SamplerConfig) *Sampler {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Sampler{
		workers:   cfg.Workers,
		seed:      cfg.Seed,
		batchSize: cfg.BatchSize,
		rf:        cfg.RiskFreeRate,
	}
}

// RiskFreeRate returns the rate used for Sharpe ratios.
func (s *Sampler) RiskFreeRate() float64 {
	return s.rf
}

// Sample draws count portfolios.
func (s *Sampler) Sample(ctx context.Context, meanReturns []float64, covariance [][]float64, count int) ([]PortfolioSample, error) {
	return s.SampleWithProgress(ctx, meanReturns, covariance, count, nil)
}

// SampleWithProgress draws count portfolios, reporting after every batch.
//
// The index range is split into contiguous chunks, one per worker, and each
// worker owns a generator seeded from the base seed and its index. Samples
// are stored by index, so a fixed seed and worker count reproduce a run.
func (s *Sampler) SampleWithProgress(
	ctx context.Context,
	meanReturns []float64,
	covariance [][]float64,
	count int,
	progress ProgressFunc,
) ([]PortfolioSample, error) {
	n := len(meanReturns)
	if n == 0 {
		return nil, fmt.Errorf("%w: no assets to sample", ErrInvalidAssets)
	}
	if count <= 0 || count > MaxSampleCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleCount, count)
	}
	cov, err := symmetricCovariance(covariance, n)
	if err != nil {
		return nil, err
	}

	base := s.seed
	if base == 0 {
		base = time.Now().UnixNano()
	}

	workers := min(s.workers, count)
	chunk := (count + workers - 1) / workers
	samples := make([]PortfolioSample, count)

	var (
		mu        sync.Mutex
		completed int
	)
	report := func(done int) {
		if progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		completed += done
		progress(completed, count)
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, count)
		if lo >= hi {
			break
		}
		rng := rand.New(rand.NewSource(workerSeed(base, w)))

		g.Go(func() error {
			for start := lo; start < hi; start += s.batchSize {
				if err := gctx.Err(); err != nil {
					return err
				}
				end := min(start+s.batchSize, hi)
				for i := start; i < end; i++ {
					samples[i] = evaluate(randomWeights(rng, n), meanReturns, cov, s.rf)
				}
				report(end - start)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return samples, nil
}

// EvaluatePortfolio scores a fixed weight vector the same way sampled
// portfolios are scored.
func (s *Sampler) EvaluatePortfolio(weights, meanReturns []float64, covariance [][]float64) (PortfolioSample, error) {
	if len(weights) != len(meanReturns) {
		return PortfolioSample{}, fmt.Errorf("weight vector length %d, expected %d", len(weights), len(meanReturns))
	}
	cov, err := symmetricCovariance(covariance, len(meanReturns))
	if err != nil {
		return PortfolioSample{}, err
	}
	return evaluate(append([]float64(nil), weights...), meanReturns, cov, s.rf), nil
}

// randomWeights draws n independent U(0,1) values and normalizes them by
// their sum. This is not uniform on the simplex: it over-weights the center.
// Frontier coverage depends on that law, so it is kept as is.
func randomWeights(rng *rand.Rand, n int) []float64 {
	w := make([]float64, n)
	for {
		sum := 0.0
		for i := range w {
			w[i] = rng.Float64()
			sum += w[i]
		}
		if sum > 0 {
			floats.Scale(1/sum, w)
			return w
		}
	}
}

func evaluate(weights, meanReturns []float64, cov *mat.SymDense, rf float64) PortfolioSample {
	wv := mat.NewVecDense(len(weights), weights)

	ret := floats.Dot(weights, meanReturns) * TradingDaysPerYear
	variance := mat.Inner(wv, cov, wv)
	if variance < 0 {
		// rounding on perfectly hedged pairs
		variance = 0
	}
	risk := math.Sqrt(variance) * math.Sqrt(TradingDaysPerYear)

	return PortfolioSample{
		Weights:     weights,
		Return:      ret,
		Risk:        risk,
		SharpeRatio: (ret - rf) / risk,
	}
}

func symmetricCovariance(covariance [][]float64, n int) (*mat.SymDense, error) {
	if len(covariance) != n {
		return nil, fmt.Errorf("covariance has %d rows, expected %d", len(covariance), n)
	}
	data := make([]float64, 0, n*n)
	for i, row := range covariance {
		if len(row) != n {
			return nil, fmt.Errorf("covariance row %d has %d columns, expected %d", i, len(row), n)
		}
		data = append(data, row...)
	}
	return mat.NewSymDense(n, data), nil
}

// workerSeed spreads worker seeds apart with the golden-ratio increment.
func workerSeed(base int64, worker int) int64 {
	return int64(uint64(base) + uint64(worker+1)*0x9E3779B97F4A7C15)
}
