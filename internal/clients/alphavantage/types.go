package alphavantage

import "time"

// DailyPrice is one bar of a daily time series.
// AdjustedClose equals Close when the endpoint does not adjust.
type DailyPrice struct {
	Date          time.Time `json:"date"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	AdjustedClose float64   `json:"adjusted_close"`
	Volume        int64     `json:"volume"`
}

// GlobalQuote is the latest quote for a symbol.
type GlobalQuote struct {
	Symbol           string  `json:"symbol" msgpack:"symbol"`
	Open             float64 `json:"open" msgpack:"open"`
	High             float64 `json:"high" msgpack:"high"`
	Low              float64 `json:"low" msgpack:"low"`
	Price            float64 `json:"price" msgpack:"price"`
	Volume           int64   `json:"volume" msgpack:"volume"`
	LatestTradingDay string  `json:"latest_trading_day" msgpack:"latest_trading_day"`
	PreviousClose    float64 `json:"previous_close" msgpack:"previous_close"`
	Change           float64 `json:"change" msgpack:"change"`
	ChangePercent    float64 `json:"change_percent" msgpack:"change_percent"`
	// ChangePercentRaw keeps the upstream text (e.g. "0.65%")
	ChangePercentRaw string `json:"change_percent_raw" msgpack:"change_percent_raw"`
}

// CacheTTL configures the in-memory response cache.
type CacheTTL struct {
	PriceData time.Duration
	Quotes    time.Duration
}

// DefaultCacheTTL returns the default cache durations.
func DefaultCacheTTL() CacheTTL {
	return CacheTTL{
		PriceData: time.Hour,
		Quotes:    15 * time.Minute,
	}
}
