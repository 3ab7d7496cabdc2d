package optimization

import "errors"

var (
	// ErrInsufficientHistory is returned when a series has fewer than two
	// usable prices, before or after date alignment.
	ErrInsufficientHistory = errors.New("insufficient price history")

	// ErrInvalidAssets is returned for an empty or duplicated asset list.
	ErrInvalidAssets = errors.New("invalid asset list")

	// ErrInvalidConstraints is returned for bounds outside [0, 1] or min > max.
	ErrInvalidConstraints = errors.New("invalid weight constraints")

	// ErrInvalidSampleCount is returned for negative or oversized sample counts.
	ErrInvalidSampleCount = errors.New("invalid sample count")

	// ErrNoViablePortfolio is returned when no sample has a finite Sharpe ratio.
	ErrNoViablePortfolio = errors.New("no viable portfolio")
)
