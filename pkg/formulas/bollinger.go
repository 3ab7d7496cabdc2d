package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// BollingerBands represents Bollinger Bands values at one point
type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// CalculateBollingerSeries returns one band triple per input price.
// Entries before the first full window are nil.
func CalculateBollingerSeries(closes []float64, length int, stdDevMultiplier float64) []*BollingerBands {
	if length < 2 || len(closes) < length {
		return nil
	}

	// MAType 0 = SMA
	upper, middle, lower := talib.BBands(closes, length, stdDevMultiplier, stdDevMultiplier, 0)

	out := make([]*BollingerBands, len(closes))
	for i := length - 1; i < len(closes) && i < len(upper); i++ {
		if math.IsNaN(upper[i]) || math.IsNaN(lower[i]) {
			continue
		}
		out[i] = &BollingerBands{Upper: upper[i], Middle: middle[i], Lower: lower[i]}
	}
	return out
}

// CalculateBollingerBands returns the bands for the most recent price, or nil
// if there is not enough data.
func CalculateBollingerBands(closes []float64, length int, stdDevMultiplier float64) *BollingerBands {
	series := CalculateBollingerSeries(closes, length, stdDevMultiplier)
	if len(series) == 0 {
		return nil
	}
	return series[len(series)-1]
}
