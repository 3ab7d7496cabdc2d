package clientdata

import "time"

// TTL constants for different data types.
// These are added to the repository clock when storing to calculate expires_at.
const (
	// Daily bars only change once per trading day
	TTLPriceHistory = 24 * time.Hour

	// Quarterly/annual filings
	TTLFinancials = 7 * 24 * time.Hour

	// Short-lived quotes
	TTLGlobalQuote = 10 * time.Minute
	TTLCryptoPrice = 5 * time.Minute
)
