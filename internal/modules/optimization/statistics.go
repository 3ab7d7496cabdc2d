package optimization

import (
	"math"

	"github.com/aristath/quantwand/pkg/formulas"
)

// ComputeAssetStatistics returns the per-period mean and sample standard
// deviation of a return series.
func ComputeAssetStatistics(returns ReturnSeries) AssetStatistics {
	return AssetStatistics{
		Mean:   formulas.Mean(returns),
		StdDev: formulas.StdDev(returns),
	}
}

// BuildCorrelationMatrix computes pairwise Pearson correlations. Only the
// upper triangle is computed and mirrored; the diagonal is 1. A zero-variance
// series correlates 0 with everything else.
func BuildCorrelationMatrix(returns [][]float64) [][]float64 {
	n := len(returns)
	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
		corr[i][i] = 1
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c := formulas.Correlation(returns[i], returns[j])
			corr[i][j] = c
			corr[j][i] = c
		}
	}
	return corr
}

// BuildCovarianceMatrix rebuilds covariance from correlation and standard
// deviations: Cov[i][j] = Corr[i][j] * std[i] * std[j].
func BuildCovarianceMatrix(corr [][]float64, stdDevs []float64) [][]float64 {
	n := len(stdDevs)
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
		for j := range cov[i] {
			cov[i][j] = corr[i][j] * stdDevs[i] * stdDevs[j]
		}
	}
	return cov
}

// annualize converts per-period statistics into the reporting form.
func annualize(stats []AssetStatistics, assets []string) Statistics {
	out := Statistics{
		MeanReturns:  make([]float64, len(stats)),
		Volatilities: make([]float64, len(stats)),
		Assets:       append([]string(nil), assets...),
	}
	for i, s := range stats {
		out.MeanReturns[i] = formulas.AnnualizedReturn(s.Mean)
		out.Volatilities[i] = s.StdDev * math.Sqrt(TradingDaysPerYear)
	}
	return out
}
