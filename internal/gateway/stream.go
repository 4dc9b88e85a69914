// ABOUTME: Stream subscriber relaying a job's bus events over SSE or WebSocket
// ABOUTME: Sends a connected event first and stops after the terminal event

package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/2389/research-gateway/internal/bus"
	"github.com/2389/research-gateway/internal/tracker"
)

// connectedEvent builds the first event of a relay, carrying the job's
// current snapshot when it is still registered.
func (g *Gateway) connectedEvent(id string) bus.Event {
	var snapshot *tracker.Snapshot
	if job, ok := g.registry.Get(id); ok {
		snapshot = job.RunContext.Snapshot()
	}
	return bus.Event{Type: bus.EventConnected, RequestID: id, Trackers: snapshot}
}

// relay sends connected followed by every subsequent event for id until a
// terminal event, ctx ends, or send fails.
func (g *Gateway) relay(ctx context.Context, id string, send func(bus.Event) error) {
	// Subscribe before reading the snapshot so no event falls in between.
	events, sub := g.bus.SubscribeChan(ctx, id)
	defer sub.Unsubscribe()

	if err := send(g.connectedEvent(id)); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := send(ev); err != nil {
				g.logger.Debug("stream subscriber write failed", "request_id", id, "error", err)
				return
			}
			if ev.Type.Terminal() {
				return
			}
		}
	}
}

// handleStream serves GET /api/v1/stream/{requestId} as server-sent events.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("requestId")

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	g.relay(r.Context(), id, func(ev bus.Event) error {
		if err := g.writeSSEData(w, ev); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
}

// websocketAcceptOptions checks origins against server.websocket_origins.
// With no patterns configured every origin is accepted, as for CORS.
func (g *Gateway) websocketAcceptOptions() *websocket.AcceptOptions {
	origins := g.config.Server.WebSocketOrigins
	if len(origins) == 0 {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return &websocket.AcceptOptions{OriginPatterns: origins}
}

// handleWebSocket serves GET /api/v1/ws/{requestId}, one JSON text message
// per event.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("requestId")

	conn, err := websocket.Accept(w, r, g.websocketAcceptOptions())
	if err != nil {
		g.logger.Debug("websocket accept failed", "request_id", id, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	// CloseRead discards client frames and cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	g.relay(ctx, id, func(ev bus.Event) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageText, payload)
	})

	_ = conn.Close(websocket.StatusNormalClosure, "done")
}
