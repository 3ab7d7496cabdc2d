package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBollingerSeries(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i%5)
	}

	series := CalculateBollingerSeries(closes, 20, 2)
	require.Len(t, series, len(closes))

	for i := 0; i < 19; i++ {
		assert.Nil(t, series[i], "index %d", i)
	}
	for i := 19; i < len(closes); i++ {
		require.NotNil(t, series[i], "index %d", i)
		assert.Greater(t, series[i].Upper, series[i].Middle)
		assert.Less(t, series[i].Lower, series[i].Middle)
	}
}

func TestCalculateBollingerSeries_InsufficientData(t *testing.T) {
	assert.Nil(t, CalculateBollingerSeries([]float64{1, 2, 3}, 20, 2))
	assert.Nil(t, CalculateBollingerBands([]float64{1, 2, 3}, 20, 2))
}

func TestCalculateBollingerBands_FlatSeries(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 50
	}

	bands := CalculateBollingerBands(closes, 20, 2)
	require.NotNil(t, bands)
	assert.InDelta(t, 50, bands.Middle, 1e-9)
	assert.InDelta(t, 50, bands.Upper, 1e-6)
	assert.InDelta(t, 50, bands.Lower, 1e-6)
}
