package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/quantwand/internal/modules/history"
	"github.com/aristath/quantwand/internal/modules/optimization"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

type synthProvider struct {
	synth *history.Synthesizer
}

func (p *synthProvider) Fetch(ctx context.Context, symbol, outputSize string) (history.Result, error) {
	if symbol == "SHORT" {
		return history.Result{Symbol: symbol, Series: history.PriceSeries{{Date: time.Now(), Price: 1}}}, nil
	}
	return history.Result{Symbol: symbol, Series: p.synth.Generate(symbol), Source: history.SourceSynthetic}, nil
}

func setupRouter(t *testing.T) chi.Router {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	provider := &synthProvider{synth: history.NewSynthesizer(3, nil)}
	sampler := optimization.NewSampler(optimization.SamplerConfig{Workers: 2, Seed: 9, RiskFreeRate: optimization.DefaultRiskFreeRate})
	service := optimization.NewOptimizerService(provider, sampler, optimization.ServiceConfig{
		OptimizationSamples: 500,
		SimulationSamples:   300,
	}, logger)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		NewHandler(service, logger).RegisterRoutes(r)
	})
	return router
}

func post(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleOptimize(t *testing.T) {
	router := setupRouter(t)

	w := post(t, router, "/api/portfolio/optimize", `{"assets":["AAPL","msft"],"constraints":{"minWeight":0.1,"maxWeight":0.9}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

	weights, ok := response["optimizedWeights"].([]interface{})
	require.True(t, ok)
	require.Len(t, weights, 2)
	first := weights[0].(map[string]interface{})
	assert.Equal(t, "AAPL", first["symbol"])
	assert.Equal(t, "MSFT", weights[1].(map[string]interface{})["symbol"])

	for _, key := range []string{"expectedReturn", "risk", "sharpeRatio", "correlationMatrix",
		"efficientFrontier", "minVariancePortfolio", "statistics", "runId", "constraintsSatisfied"} {
		assert.Contains(t, response, key)
	}
	assert.Equal(t, true, response["constraintsSatisfied"])
}

func TestHandleOptimize_DefaultConstraints(t *testing.T) {
	router := setupRouter(t)

	w := post(t, router, "/api/portfolio/optimize", `{"assets":["AAPL","GOOGL"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var result optimization.OptimizationResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, optimization.DefaultConstraints(), result.Constraints)
}

func TestHandleOptimize_Errors(t *testing.T) {
	router := setupRouter(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"assets":`, http.StatusBadRequest},
		{"no assets", `{"assets":[]}`, http.StatusBadRequest},
		{"duplicate assets", `{"assets":["AAPL","aapl"]}`, http.StatusBadRequest},
		{"inverted bounds", `{"assets":["AAPL"],"constraints":{"minWeight":0.7,"maxWeight":0.2}}`, http.StatusBadRequest},
		{"bound above one", `{"assets":["AAPL"],"constraints":{"maxWeight":1.5}}`, http.StatusBadRequest},
		{"short history", `{"assets":["AAPL","SHORT"]}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, router, "/api/portfolio/optimize", tt.body)
			assert.Equal(t, tt.status, w.Code)

			var response map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.NotEmpty(t, response["error"])
		})
	}
}

func TestHandleSimulate(t *testing.T) {
	router := setupRouter(t)

	w := post(t, router, "/api/portfolio/simulate", `{"assets":["TSLA","AMZN"],"numSimulations":250}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response struct {
		Data     optimization.SimulationResult `json:"data"`
		Metadata map[string]interface{}        `json:"metadata"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 250, response.Data.SampleCount)
	assert.Len(t, response.Data.Samples, 250)
	assert.Equal(t, []string{"TSLA", "AMZN"}, response.Data.Assets)
	assert.Contains(t, response.Metadata, "timestamp")
}

func TestHandleSimulate_InvalidCount(t *testing.T) {
	router := setupRouter(t)
	w := post(t, router, "/api/portfolio/simulate", `{"assets":["TSLA"],"numSimulations":-5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSimulateStream(t *testing.T) {
	srv := httptest.NewServer(setupRouter(t))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/portfolio/simulate/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	req, _ := json.Marshal(simulateRequest{Assets: []string{"AAPL", "MSFT"}, NumSimulations: 2000})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, req))

	var final streamMessage
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var msg streamMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == MessageProgress {
			assert.Equal(t, 2000, msg.Total)
			assert.LessOrEqual(t, msg.Completed, msg.Total)
			continue
		}
		final = msg
		break
	}

	require.Equal(t, MessageResult, final.Type, final.Error)
	require.NotNil(t, final.Result)
	assert.Equal(t, 2000, final.Result.SampleCount)
}

func TestHandleSimulateStream_Error(t *testing.T) {
	srv := httptest.NewServer(setupRouter(t))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/portfolio/simulate/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"assets":[]}`)))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg streamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, MessageError, msg.Type)
	assert.Contains(t, msg.Error, "invalid asset list")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("x: %w", optimization.ErrInvalidConstraints)))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(optimization.ErrNoViablePortfolio))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestRegisterRoutes(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(nil, logger)
	router := chi.NewRouter()

	assert.NotPanics(t, func() {
		handler.RegisterRoutes(router)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/portfolio/optimize", bytes.NewBufferString("nope")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
