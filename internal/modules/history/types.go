// Package history provides daily price series for assets, backed by an
// upstream market data API with in-memory and persistent caching and a
// synthetic fallback when the upstream cannot serve a symbol.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the wire format for series dates.
const DateLayout = "2006-01-02"

// ErrDataUnavailable is the upstream failure class: unknown symbol, rate
// limiting, transport failure or a malformed payload. The provider recovers
// from it locally and never returns it to callers.
var ErrDataUnavailable = errors.New("historical data unavailable")

// PricePoint is one observation of a daily series.
type PricePoint struct {
	Date  time.Time `msgpack:"date"`
	Price float64   `msgpack:"price"`
}

// MarshalJSON renders the date as YYYY-MM-DD.
func (p PricePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date  string  `json:"date"`
		Price float64 `json:"price"`
	}{p.Date.Format(DateLayout), p.Price})
}

// PriceSeries is ordered by strictly increasing date with positive prices.
type PriceSeries []PricePoint

// Prices returns the price column.
func (s PriceSeries) Prices() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Price
	}
	return out
}

// Clone returns an independent copy.
func (s PriceSeries) Clone() PriceSeries {
	if s == nil {
		return nil
	}
	out := make(PriceSeries, len(s))
	copy(out, s)
	return out
}

// Validate checks ordering and price positivity.
func (s PriceSeries) Validate() error {
	for i, p := range s {
		if !(p.Price > 0) {
			return fmt.Errorf("non-positive price %v at %s", p.Price, p.Date.Format(DateLayout))
		}
		if i > 0 && !p.Date.After(s[i-1].Date) {
			return fmt.Errorf("dates not strictly increasing at %s", p.Date.Format(DateLayout))
		}
	}
	return nil
}

// Source tells where a series came from.
type Source string

const (
	SourceUpstream   Source = "upstream"
	SourceMemory     Source = "memory_cache"
	SourcePersistent Source = "persistent_cache"
	SourceStale      Source = "stale_cache"
	SourceSynthetic  Source = "synthetic"
)

// Result is a series together with its provenance.
type Result struct {
	Symbol string
	Series PriceSeries
	Source Source
}

// SeriesFetcher retrieves a daily adjusted-close series from an upstream.
type SeriesFetcher interface {
	FetchDaily(ctx context.Context, symbol, outputSize string) (PriceSeries, error)
}
