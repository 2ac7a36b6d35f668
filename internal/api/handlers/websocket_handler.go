package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecom-insights/backend/internal/query"
	"github.com/ecom-insights/backend/pkg/logger"
)

// WebSocketHandler runs the pipeline for each "question" message and pushes
// one message per finished stage, so the page can render progressively.
type WebSocketHandler struct {
	engine *query.Engine
}

func NewWebSocketHandler(engine *query.Engine) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
	}
}

type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	log := logger.With(zap.String("conn_id", uuid.NewString()))
	log.Info("WebSocket connection established")

	// ctx ends when the client goes away, aborting any question in flight.
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Close()
		log.Info("WebSocket connection closed")
	}()

	messages := make(chan wsMessage)
	go readMessages(ctx, cancel, c.ReadJSON, messages, log)

	for msg := range messages {
		if msg.Type != "question" {
			continue
		}
		if strings.TrimSpace(msg.Content) == "" {
			h.sendError(c, "", "Missing 'question' in message.")
			continue
		}

		log.Info("Processing WebSocket question", zap.String("question", msg.Content))

		if err := h.stream(ctx, c, msg.Content); err != nil {
			log.Warn("Failed to stream answer", zap.Error(err))
			return
		}
	}
}

// readMessages forwards decoded messages until reading fails, then cancels
// the connection context and closes out.
func readMessages(ctx context.Context, cancel context.CancelFunc, read func(v any) error, out chan<- wsMessage, log *zap.Logger) {
	defer close(out)
	defer cancel()
	for {
		var msg wsMessage
		if err := read(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("Failed to read WebSocket message", zap.Error(err))
			}
			return
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// stream returns an error only when the connection itself failed.
func (h *WebSocketHandler) stream(ctx context.Context, c *websocket.Conn, question string) error {
	var writeErr error
	send := func(msg map[string]any) {
		if writeErr == nil {
			writeErr = c.WriteJSON(msg)
		}
	}

	send(map[string]any{"type": "status", "content": "Generating SQL..."})

	ans, err := h.engine.AskWithProgress(ctx, question, func(stage query.Stage, ans *query.Answer) {
		switch stage {
		case query.StageSQL:
			send(map[string]any{"type": string(stage), "sql": ans.SQL, "cached": ans.Cached})
		case query.StageExecute:
			html, err := ResultHTML(ans.Result)
			if err != nil {
				logger.Error("Failed to render result table", zap.Error(err))
			}
			msg := map[string]any(resultFields(ans.Result))
			msg["type"] = string(stage)
			msg["raw_results_html"] = html
			send(msg)
		case query.StageChart:
			msg := map[string]any(chartFields(ans.Chart))
			msg["type"] = string(stage)
			send(msg)
		case query.StageHumanize:
			for _, chunk := range splitIntoChunks(ans.Answer) {
				send(map[string]any{"type": "chunk", "content": chunk})
			}
		}
	})
	if writeErr != nil {
		return writeErr
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		stage := "sql"
		_, msg := generationError(err)
		if ans != nil && ans.SQL != "" {
			stage = "execute"
			_, msg = executionError(err)
		}
		h.sendError(c, stage, msg)
		return nil
	}

	return c.WriteJSON(map[string]any{
		"type":       "complete",
		"id":         ans.ID,
		"answer":     ans.Answer,
		"degraded":   ans.Degraded,
		"latency_ms": ans.LatencyMS,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, stage, errorMsg string) {
	msg := map[string]any{
		"type":  "error",
		"error": errorMsg,
	}
	if stage != "" {
		msg["stage"] = stage
	}
	if err := c.WriteJSON(msg); err != nil {
		logger.Warn("Failed to send WebSocket error", zap.Error(err))
	}
}

// splitIntoChunks splits text into words that keep their trailing space so
// the client can append them verbatim.
func splitIntoChunks(text string) []string {
	words := strings.Fields(text)
	for i := range words[:max(len(words)-1, 0)] {
		words[i] += " "
	}
	return words
}
