package alphavantage

import "fmt"

// ErrRateLimitExceeded is returned when the daily or per-minute quota is used up,
// or when the API answers with its throttling notice.
type ErrRateLimitExceeded struct{}

func (e ErrRateLimitExceeded) Error() string {
	return "alpha vantage rate limit exceeded"
}

// ErrInvalidAPIKey is returned when no key is configured or the API rejects it.
type ErrInvalidAPIKey struct{}

func (e ErrInvalidAPIKey) Error() string {
	return "alpha vantage API key is missing or invalid"
}

// ErrSymbolNotFound is returned when the API reports an unknown symbol.
type ErrSymbolNotFound struct {
	Symbol string
}

func (e ErrSymbolNotFound) Error() string {
	return fmt.Sprintf("symbol not found: %s", e.Symbol)
}
