package optimization

import (
	"fmt"

	"github.com/aristath/quantwand/internal/modules/history"
)

// ComputeReturns converts n prices into n-1 simple returns.
func ComputeReturns(prices []float64) (ReturnSeries, error) {
	if len(prices) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 prices, got %d", ErrInsufficientHistory, len(prices))
	}

	returns := make(ReturnSeries, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
	}
	return returns, nil
}

// AlignSeries restricts every series to the dates present in all of them and
// returns the price columns in input order. Dates are compared at day
// granularity. A single series is returned unchanged.
func AlignSeries(series []history.PriceSeries) ([][]float64, error) {
	if len(series) == 0 {
		return nil, nil
	}
	if len(series) == 1 {
		return [][]float64{series[0].Prices()}, nil
	}

	counts := make(map[string]int, len(series[0]))
	for _, s := range series {
		seen := make(map[string]struct{}, len(s))
		for _, p := range s {
			key := p.Date.Format(history.DateLayout)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			counts[key]++
		}
	}

	aligned := make([][]float64, len(series))
	for i, s := range series {
		prices := make([]float64, 0, len(s))
		last := ""
		for _, p := range s {
			key := p.Date.Format(history.DateLayout)
			if key == last || counts[key] != len(series) {
				continue
			}
			last = key
			prices = append(prices, p.Price)
		}
		aligned[i] = prices
	}

	if n := len(aligned[0]); n < 2 {
		return nil, fmt.Errorf("%w: only %d common dates across %d series", ErrInsufficientHistory, n, len(series))
	}
	return aligned, nil
}
