package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	"github.com/gorilla/websocket"
)

const publishTimeout = 2 * time.Second

// serve runs one viewer session: register, relay inbound messages to every
// other viewer, then unregister and announce the departure.
func (h *Handler) serve(ctx context.Context, conn *Conn) {
	logger := slog.With("connection_id", conn.ID().String())
	h.hub.Add(conn)
	if h.metrics != nil {
		h.metrics.ActiveConnections.Inc()
	}
	logger.DebugContext(ctx, "Viewer connected")

	stopKeepAlive := h.keepAlive(conn)
	reason := h.readLoop(ctx, conn)
	stopKeepAlive()

	h.hub.Remove(conn)
	_ = conn.Close()
	if h.metrics != nil {
		h.metrics.ActiveConnections.Dec()
	}
	logger.DebugContext(ctx, "Viewer disconnected", "reason", reason)

	h.announce(ctx, domain.ConnectionClosed{Reason: reason})
}

func (h *Handler) readLoop(ctx context.Context, conn *Conn) string {
	ws := conn.ws
	ws.SetReadLimit(h.cfg.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			return closeReason(err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		if h.metrics != nil {
			h.metrics.MessagesReceived.Inc()
		}

		envelope, err := encodeMessage(data)
		if err != nil {
			slog.WarnContext(ctx, "Dropping viewer message", "error", err)
			continue
		}
		h.fanOut(ctx, conn, envelope)
	}
}

func (h *Handler) fanOut(ctx context.Context, sender domain.Connection, envelope []byte) {
	for _, d := range h.hub.BroadcastFrom(ctx, sender, envelope) {
		if d.Err != nil {
			slog.DebugContext(ctx, "Delivery to viewer failed", "error", d.Err)
		}
	}
	h.publish(ctx, envelope)
}

func (h *Handler) announce(ctx context.Context, closed domain.ConnectionClosed) {
	data, err := json.Marshal(closed.Event())
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode close announcement", "error", err)
		return
	}
	h.hub.Broadcast(ctx, data)
	h.publish(ctx, data)
}

func (h *Handler) publish(ctx context.Context, envelope []byte) {
	if h.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := h.publisher.Publish(ctx, envelope); err != nil {
		slog.WarnContext(ctx, "Relay publish failed", "error", err)
		return
	}
	if h.metrics != nil {
		h.metrics.MessageRelayed("out")
	}
}

// keepAlive pings the peer and closes the socket on shutdown. The returned
// func stops it.
func (h *Handler) keepAlive(conn *Conn) func() {
	stop := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		ticker := time.NewTicker(h.cfg.PongWait * 9 / 10)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					_ = conn.Close()
					return
				}
			case <-h.done:
				conn.closeWith(websocket.CloseGoingAway, "server shutting down")
				return
			case <-stop:
				return
			}
		}
	}()

	return func() {
		close(stop)
		<-finished
	}
}

// encodeMessage wraps a viewer's text frame in the event envelope. JSON
// payloads are embedded as is, anything else as a JSON string.
func encodeMessage(data []byte) ([]byte, error) {
	payload := json.RawMessage(data)
	if !json.Valid(data) {
		quoted, err := json.Marshal(string(data))
		if err != nil {
			return nil, fmt.Errorf("quote payload: %w", err)
		}
		payload = quoted
	}
	return json.Marshal(domain.Event{Type: domain.EventMessage, Payload: payload})
}

func closeReason(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure:
			return "closed"
		case websocket.CloseGoingAway:
			return "going_away"
		case websocket.CloseMessageTooBig:
			return "message_too_large"
		default:
			return fmt.Sprintf("close_%d", closeErr.Code)
		}
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return "message_too_large"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "connection_lost"
}
