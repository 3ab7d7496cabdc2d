package history

import (
	"context"

	"github.com/aristath/quantwand/internal/clients/alphavantage"
)

// AlphaVantageFetcher adapts the Alpha Vantage client to SeriesFetcher,
// using the adjusted close as the price.
type AlphaVantageFetcher struct {
	client alphavantage.ClientInterface
}

// NewAlphaVantageFetcher wraps an Alpha Vantage client.
func NewAlphaVantageFetcher(client alphavantage.ClientInterface) *AlphaVantageFetcher {
	return &AlphaVantageFetcher{client: client}
}

// FetchDaily implements SeriesFetcher.
func (f *AlphaVantageFetcher) FetchDaily(ctx context.Context, symbol, outputSize string) (PriceSeries, error) {
	bars, err := f.client.GetDailyAdjusted(ctx, symbol, outputSize)
	if err != nil {
		return nil, err
	}

	series := make(PriceSeries, 0, len(bars))
	for _, b := range bars {
		series = append(series, PricePoint{Date: b.Date, Price: b.AdjustedClose})
	}
	return series, nil
}
