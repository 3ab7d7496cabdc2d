package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/aristath/quantwand/internal/modules/optimization"
	"nhooyr.io/websocket"
)

const (
	streamRequestTimeout = 30 * time.Second
	streamWriteTimeout   = 10 * time.Second
)

// Stream message types
const (
	MessageProgress = "progress"
	MessageResult   = "result"
	MessageError    = "error"
)

type streamMessage struct {
	Type      string                         `json:"type"`
	Completed int                            `json:"completed,omitempty"`
	Total     int                            `json:"total,omitempty"`
	Result    *optimization.SimulationResult `json:"result,omitempty"`
	Error     string                         `json:"error,omitempty"`
}

// HandleSimulateStream handles GET /api/portfolio/simulate/stream.
// The client sends one simulate request; the server answers with progress
// messages while sampling and a final result or error message.
func (h *Handler) HandleSimulateStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")
	conn.SetReadLimit(maxBodyBytes)

	readCtx, cancel := context.WithTimeout(r.Context(), streamRequestTimeout)
	msgType, data, err := conn.Read(readCtx)
	cancel()
	if err != nil {
		h.log.Debug().Err(err).Msg("No simulation request received")
		return
	}
	if msgType != websocket.MessageText {
		conn.Close(websocket.StatusUnsupportedData, "expected text message")
		return
	}

	var req simulateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.send(r.Context(), conn, streamMessage{Type: MessageError, Error: "invalid request: " + err.Error()})
		conn.Close(websocket.StatusInvalidFramePayloadData, "invalid request")
		return
	}

	// Cancelled when the client goes away
	ctx := conn.CloseRead(r.Context())

	updates := make(chan [2]int, 1)
	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		for u := range updates {
			h.send(ctx, conn, streamMessage{Type: MessageProgress, Completed: u[0], Total: u[1]})
		}
	}()

	result, err := h.service.MonteCarloSimulationWithProgress(ctx, req.Assets, req.NumSimulations, func(completed, total int) {
		select {
		case updates <- [2]int{completed, total}:
		default:
			// writer is behind, the next update supersedes this one
		}
	})
	close(updates)
	writer.Wait()

	if err != nil {
		h.log.Error().Err(err).Strs("assets", req.Assets).Msg("Streamed simulation failed")
		h.send(ctx, conn, streamMessage{Type: MessageError, Error: err.Error()})
		conn.Close(websocket.StatusNormalClosure, "simulation failed")
		return
	}

	h.send(ctx, conn, streamMessage{Type: MessageResult, Result: result})
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg streamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode stream message")
		return
	}
	wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		h.log.Debug().Err(err).Str("type", msg.Type).Msg("Failed to write stream message")
	}
}
