// Package optimization approximates the risk/return efficient frontier of a
// set of assets by Monte Carlo sampling of long-only weight vectors.
package optimization

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/aristath/quantwand/internal/modules/history"
	"github.com/aristath/quantwand/pkg/formulas"
)

// Engine constants
const (
	TradingDaysPerYear  = formulas.TradingDaysPerYear
	DefaultRiskFreeRate = 0.04

	// Diagnostic simulation and full optimization run different sample
	// counts; both are exposed.
	DefaultSimulationCount   = 5000
	DefaultOptimizationCount = 10000
	MaxSampleCount           = 1000000
)

// ReturnSeries holds simple period returns, r_i = (p_i - p_{i-1}) / p_{i-1}.
type ReturnSeries []float64

// AssetStatistics are per-period (daily) moments of a return series.
type AssetStatistics struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
}

// PortfolioSample is one evaluated weight vector. Return and Risk are
// annualized. SharpeRatio may be non-finite when Risk is zero.
type PortfolioSample struct {
	Weights     []float64 `json:"weights"`
	Return      float64   `json:"return"`
	Risk        float64   `json:"risk"`
	SharpeRatio float64   `json:"sharpeRatio"`
}

// MarshalJSON renders a non-finite Sharpe ratio as null, which
// encoding/json would otherwise reject.
func (s PortfolioSample) MarshalJSON() ([]byte, error) {
	var sharpe *float64
	if isFinite(s.SharpeRatio) {
		v := s.SharpeRatio
		sharpe = &v
	}
	return json.Marshal(struct {
		Weights     []float64 `json:"weights"`
		Return      float64   `json:"return"`
		Risk        float64   `json:"risk"`
		SharpeRatio *float64  `json:"sharpeRatio"`
	}{s.Weights, s.Return, s.Risk, sharpe})
}

// Constraints bound every individual weight. Zero value is not valid on its
// own, use DefaultConstraints.
type Constraints struct {
	MinWeight float64 `json:"minWeight"`
	MaxWeight float64 `json:"maxWeight"`
}

// DefaultConstraints allows any long-only weight.
func DefaultConstraints() Constraints {
	return Constraints{MinWeight: 0, MaxWeight: 1}
}

// Validate checks that both bounds lie in [0, 1] and min <= max.
func (c Constraints) Validate() error {
	if math.IsNaN(c.MinWeight) || math.IsNaN(c.MaxWeight) {
		return fmt.Errorf("%w: bounds must be numbers", ErrInvalidConstraints)
	}
	if c.MinWeight < 0 || c.MinWeight > 1 {
		return fmt.Errorf("%w: minWeight %.4f outside [0, 1]", ErrInvalidConstraints, c.MinWeight)
	}
	if c.MaxWeight < 0 || c.MaxWeight > 1 {
		return fmt.Errorf("%w: maxWeight %.4f outside [0, 1]", ErrInvalidConstraints, c.MaxWeight)
	}
	if c.MinWeight > c.MaxWeight {
		return fmt.Errorf("%w: minWeight %.4f > maxWeight %.4f", ErrInvalidConstraints, c.MinWeight, c.MaxWeight)
	}
	return nil
}

// Allows reports whether every weight lies within the bounds.
func (c Constraints) Allows(weights []float64) bool {
	for _, w := range weights {
		if w < c.MinWeight || w > c.MaxWeight {
			return false
		}
	}
	return true
}

// Statistics carries annualized per-asset moments in asset order.
type Statistics struct {
	MeanReturns  []float64 `json:"meanReturns"`
	Volatilities []float64 `json:"volatilities"`
	Assets       []string  `json:"assets"`
}

// SimulationResult is the output of the diagnostic simulation path.
type SimulationResult struct {
	RunID                string                    `json:"runId"`
	Assets               []string                  `json:"assets"`
	OptimalPortfolio     PortfolioSample           `json:"optimalPortfolio"`
	MinVariancePortfolio PortfolioSample           `json:"minVariancePortfolio"`
	Samples              []PortfolioSample         `json:"efficientFrontier"`
	CorrelationMatrix    [][]float64               `json:"correlationMatrix"`
	CovarianceMatrix     [][]float64               `json:"covarianceMatrix"`
	Statistics           Statistics                `json:"statistics"`
	DataSources          map[string]history.Source `json:"dataSources"`
	SampleCount          int                       `json:"sampleCount"`
	GeneratedAt          time.Time                 `json:"generatedAt"`
}

// AssetWeight pairs a symbol with its allocated weight.
type AssetWeight struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
}

// FrontierPoint is the (return, risk) projection of a sample.
type FrontierPoint struct {
	Return float64 `json:"return"`
	Risk   float64 `json:"risk"`
}

// MinVariancePortfolio is the lowest-risk sample of a run.
type MinVariancePortfolio struct {
	Weights []float64 `json:"weights"`
	Return  float64   `json:"return"`
	Risk    float64   `json:"risk"`
}

// OptimizationResult is the output of the full optimization path.
type OptimizationResult struct {
	RunID                string                    `json:"runId"`
	OptimizedWeights     []AssetWeight             `json:"optimizedWeights"`
	ExpectedReturn       float64                   `json:"expectedReturn"`
	Risk                 float64                   `json:"risk"`
	SharpeRatio          float64                   `json:"sharpeRatio"`
	Constraints          Constraints               `json:"constraints"`
	ConstraintsSatisfied bool                      `json:"constraintsSatisfied"`
	CorrelationMatrix    [][]float64               `json:"correlationMatrix"`
	EfficientFrontier    []FrontierPoint           `json:"efficientFrontier"`
	MinVariancePortfolio MinVariancePortfolio      `json:"minVariancePortfolio"`
	Statistics           Statistics                `json:"statistics"`
	DataSources          map[string]history.Source `json:"dataSources"`
	SampleCount          int                       `json:"sampleCount"`
	GeneratedAt          time.Time                 `json:"generatedAt"`
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
