// Package handlers provides HTTP handlers for market data lookups: stock
// quotes, daily price history, crypto prices and financial statements.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/quantwand/internal/clients/alphavantage"
	"github.com/aristath/quantwand/internal/clients/coingecko"
	"github.com/aristath/quantwand/internal/modules/history"
	"github.com/aristath/quantwand/pkg/formulas"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Bollinger overlay defaults
const (
	DefaultBandLength     = 20
	DefaultBandMultiplier = 2.0
	maxBandLength         = 200
)

// QuoteSource returns the latest stock quote.
type QuoteSource interface {
	GetGlobalQuote(ctx context.Context, symbol string) (*alphavantage.GlobalQuote, error)
}

// CryptoSource returns coin prices.
type CryptoSource interface {
	GetPrice(ctx context.Context, id string) (*coingecko.Price, error)
}

// FinancialsSource returns income statements as raw JSON.
type FinancialsSource interface {
	GetIncomeStatements(ctx context.Context, symbol string) (json.RawMessage, error)
}

// SeriesSource returns daily price series.
type SeriesSource interface {
	Fetch(ctx context.Context, symbol, outputSize string) (history.Result, error)
}

// Handler handles market data HTTP requests
type Handler struct {
	quotes     QuoteSource
	crypto     CryptoSource
	financials FinancialsSource
	series     SeriesSource
	log        zerolog.Logger
}

// NewHandler creates a new market data handler
func NewHandler(
	quotes QuoteSource,
	crypto CryptoSource,
	financials FinancialsSource,
	series SeriesSource,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		quotes:     quotes,
		crypto:     crypto,
		financials: financials,
		series:     series,
		log:        log.With().Str("handler", "market").Logger(),
	}
}

// HandleGetStockPrice handles GET /api/stocks/price/{symbol}
func (h *Handler) HandleGetStockPrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))

	quote, err := h.quotes.GetGlobalQuote(r.Context(), symbol)
	if err != nil {
		var notFound alphavantage.ErrSymbolNotFound
		if errors.As(err, &notFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Stock not found"})
			return
		}
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to fetch stock price")
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Failed to fetch stock price"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":           quote.Symbol,
		"price":            quote.Price,
		"change":           quote.Change,
		"changePercent":    quote.ChangePercentRaw,
		"volume":           quote.Volume,
		"latestTradingDay": quote.LatestTradingDay,
	})
}

// HandleGetStockHistory handles GET /api/stocks/history/{symbol}
// Query: outputsize=compact|full, bands=<window length, 0 disables>
func (h *Handler) HandleGetStockHistory(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	outputSize := r.URL.Query().Get("outputsize")
	if outputSize == "" {
		outputSize = history.DefaultOutputSize
	}
	if outputSize != "compact" && outputSize != "full" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "outputsize must be compact or full"})
		return
	}

	bandLength := DefaultBandLength
	if raw := r.URL.Query().Get("bands"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n == 1 || n > maxBandLength {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bands must be 0 or between 2 and 200"})
			return
		}
		bandLength = n
	}

	res, err := h.series.Fetch(r.Context(), symbol, outputSize)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to fetch price history")
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to fetch price history"})
		return
	}

	data := map[string]interface{}{
		"symbol": res.Symbol,
		"source": res.Source,
		"prices": res.Series,
	}
	if bandLength > 0 {
		data["bands"] = formulas.CalculateBollingerSeries(res.Series.Prices(), bandLength, DefaultBandMultiplier)
		data["bandLength"] = bandLength
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(res.Series),
		},
	})
}

// HandleGetCryptoPrice handles GET /api/crypto/price/{id}
func (h *Handler) HandleGetCryptoPrice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	price, err := h.crypto.GetPrice(r.Context(), id)
	if err != nil {
		if errors.Is(err, coingecko.ErrNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Crypto not found"})
			return
		}
		h.log.Error().Err(err).Str("id", id).Msg("Failed to fetch crypto price")
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Failed to fetch crypto price"})
		return
	}

	h.writeJSON(w, http.StatusOK, price)
}

// HandleGetFinancials handles GET /api/financials/{symbol}
func (h *Handler) HandleGetFinancials(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	statements, err := h.financials.GetIncomeStatements(r.Context(), symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to fetch financial data")
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Failed to fetch financial data"})
		return
	}

	h.writeJSON(w, http.StatusOK, statements)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
