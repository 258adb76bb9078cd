package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/agenttrace/agenttrace/internal/events"
)

// WebsocketHandler streams spans to clients as they are stored. Clients can
// narrow the feed with ?channel=llm (LLM call spans only) or ?trace_id=<id>
// (one trace only).
type WebsocketHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewWebsocketHandler creates a new websocket span feed handler.
func NewWebsocketHandler(bus *events.Bus, log zerolog.Logger) *WebsocketHandler {
	return &WebsocketHandler{
		bus: bus,
		log: log.With().Str("component", "ws_stream").Logger(),
	}
}

// spanFrame is the wire shape of one streamed span.
type spanFrame struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Span      interface{} `json:"span"`
}

// ServeHTTP handles GET /api/v1/stream websocket upgrades.
func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Dashboard may be served from a different origin in dev mode
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	channel := r.URL.Query().Get("channel")
	traceID := r.URL.Query().Get("trace_id")

	h.log.Info().
		Str("channel", channel).
		Str("trace_id", traceID).
		Msg("Client connected to span stream")

	eventChan := h.bus.Subscribe(events.SpanReceived, events.TraceCompleted)
	defer h.bus.Unsubscribe(eventChan)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case event, open := <-eventChan:
			if !open {
				return
			}
			frame, ok := h.frameFor(event, channel, traceID)
			if !ok {
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, frame)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Websocket write failed, closing stream")
				return
			}
		}
	}
}

// frameFor applies the client's filters and builds the outgoing frame.
func (h *WebsocketHandler) frameFor(event events.Event, channel, traceID string) (*spanFrame, bool) {
	switch data := event.Data.(type) {
	case *events.SpanReceivedData:
		if channel == "llm" && !data.IsLLM() {
			return nil, false
		}
		if traceID != "" && data.Span.TraceID != traceID {
			return nil, false
		}
		return &spanFrame{
			Type:      string(event.Type),
			Timestamp: event.Timestamp,
			Span:      data.Span,
		}, true

	case *events.TraceCompletedData:
		if traceID != "" && data.TraceID != traceID {
			return nil, false
		}
		return &spanFrame{
			Type:      string(event.Type),
			Timestamp: event.Timestamp,
			Span:      data,
		}, true
	}
	return nil, false
}
