package history

import (
	"math/rand"
	"sync"
	"time"
)

// SyntheticLength is the number of points in a generated series (one trading year).
const SyntheticLength = 252

// SyntheticParams drive the random walk for one symbol.
type SyntheticParams struct {
	Base       float64
	Volatility float64
	Trend      float64
}

// DefaultSyntheticParams apply to symbols without their own entry.
var DefaultSyntheticParams = SyntheticParams{Base: 100, Volatility: 0.025, Trend: 0.0002}

var syntheticParams = map[string]SyntheticParams{
	"AAPL":  {Base: 150, Volatility: 0.02, Trend: 0.0003},
	"GOOGL": {Base: 130, Volatility: 0.025, Trend: 0.0002},
	"MSFT":  {Base: 300, Volatility: 0.018, Trend: 0.0004},
	"AMZN":  {Base: 140, Volatility: 0.03, Trend: 0.0001},
	"TSLA":  {Base: 250, Volatility: 0.05, Trend: 0.0005},
}

// ParamsFor returns the walk parameters for a symbol.
func ParamsFor(symbol string) SyntheticParams {
	if p, ok := syntheticParams[symbol]; ok {
		return p
	}
	return DefaultSyntheticParams
}

// Synthesizer generates plausible price series when no real data is available.
// It is safe for concurrent use.
type Synthesizer struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewSynthesizer creates a generator. seed 0 seeds from the clock; a nil now uses time.Now.
func NewSynthesizer(seed int64, now func() time.Time) *Synthesizer {
	if now == nil {
		now = time.Now
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Synthesizer{
		rng: rand.New(rand.NewSource(seed)),
		now: now,
	}
}

// Generate returns SyntheticLength points on consecutive calendar days, the
// last one being today. Each step applies
// price *= 1 + (U(0,1) - 0.5) * volatility + trend.
func (s *Synthesizer) Generate(symbol string) PriceSeries {
	params := ParamsFor(symbol)

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	s.mu.Lock()
	defer s.mu.Unlock()

	series := make(PriceSeries, SyntheticLength)
	price := params.Base
	for i := 0; i < SyntheticLength; i++ {
		price *= 1 + (s.rng.Float64()-0.5)*params.Volatility + params.Trend
		series[i] = PricePoint{
			Date:  today.AddDate(0, 0, i-(SyntheticLength-1)),
			Price: price,
		}
	}
	return series
}
