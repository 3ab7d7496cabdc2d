// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/quantwand/internal/modules/optimization"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// Handler handles portfolio optimization HTTP requests
type Handler struct {
	service *optimization.OptimizerService
	log     zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(service *optimization.OptimizerService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "optimization").Logger(),
	}
}

type constraintsRequest struct {
	MinWeight *float64 `json:"minWeight"`
	MaxWeight *float64 `json:"maxWeight"`
}

type optimizeRequest struct {
	Assets      []string            `json:"assets"`
	Constraints *constraintsRequest `json:"constraints"`
}

// constraints fills missing bounds with the long-only defaults.
func (req optimizeRequest) constraints() optimization.Constraints {
	c := optimization.DefaultConstraints()
	if req.Constraints == nil {
		return c
	}
	if req.Constraints.MinWeight != nil {
		c.MinWeight = *req.Constraints.MinWeight
	}
	if req.Constraints.MaxWeight != nil {
		c.MaxWeight = *req.Constraints.MaxWeight
	}
	return c
}

type simulateRequest struct {
	Assets         []string `json:"assets"`
	NumSimulations int      `json:"numSimulations"`
}

// HandleOptimize handles POST /api/portfolio/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.service.OptimizePortfolio(r.Context(), req.Assets, req.constraints())
	if err != nil {
		h.log.Error().Err(err).Strs("assets", req.Assets).Msg("Failed to optimize portfolio")
		h.writeError(w, statusFor(err), "Failed to optimize portfolio", err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleSimulate handles POST /api/portfolio/simulate
func (h *Handler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.service.MonteCarloSimulation(r.Context(), req.Assets, req.NumSimulations)
	if err != nil {
		h.log.Error().Err(err).Strs("assets", req.Assets).Msg("Failed to run simulation")
		h.writeError(w, statusFor(err), "Failed to run simulation", err)
		return
	}

	response := map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, optimization.ErrInvalidAssets),
		errors.Is(err, optimization.ErrInvalidConstraints),
		errors.Is(err, optimization.ErrInvalidSampleCount):
		return http.StatusBadRequest
	case errors.Is(err, optimization.ErrInsufficientHistory),
		errors.Is(err, optimization.ErrNoViablePortfolio):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string, err error) {
	h.writeJSON(w, status, map[string]string{
		"error":   message,
		"details": err.Error(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
