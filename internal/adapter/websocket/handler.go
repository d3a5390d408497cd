package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Scobiform/fedi-follow-force-graph/internal/adapter/metrics"
	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	DefaultWriteTimeout   = 10 * time.Second
	DefaultPongWait       = 60 * time.Second
	DefaultMaxMessageSize = 64 << 10
)

// Hub is the fan-out the sessions register with.
type Hub interface {
	Add(conn domain.Connection)
	Remove(conn domain.Connection)
	Broadcast(ctx context.Context, message []byte) []domain.Delivery
	BroadcastFrom(ctx context.Context, sender domain.Connection, message []byte) []domain.Delivery
}

// Publisher forwards locally received messages to other instances.
type Publisher interface {
	Publish(ctx context.Context, message []byte) error
}

type Config struct {
	// MaxConnections caps concurrently open sockets; zero means unlimited.
	MaxConnections int
	WriteTimeout   time.Duration
	// PongWait is how long a silent peer is kept. Pings go out at 90% of it.
	PongWait       time.Duration
	MaxMessageSize int64
}

// Handler upgrades viewer requests and runs one session per socket.
type Handler struct {
	hub       Hub
	publisher Publisher
	upgrader  websocket.Upgrader
	cfg       Config
	metrics   *metrics.WebSocketMetrics

	active   atomic.Int64
	mu       sync.Mutex
	closed   bool
	done     chan struct{}
	sessions sync.WaitGroup
}

// NewHandler builds the /ws handler. publisher and wsMetrics may be nil.
func NewHandler(hub Hub, publisher Publisher, checkOrigin func(*http.Request) bool, cfg Config, wsMetrics *metrics.WebSocketMetrics) *Handler {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = DefaultPongWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}

	h := &Handler{
		hub:       hub,
		publisher: publisher,
		cfg:       cfg,
		metrics:   wsMetrics,
		done:      make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if checkOrigin != nil && !checkOrigin(r) {
				h.rejected("origin")
				return false
			}
			return true
		},
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.begin() {
		h.rejected("shutdown")
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.sessions.Done()

	if !h.acquire() {
		h.rejected("capacity")
		slog.WarnContext(r.Context(), "WebSocket connection limit reached", "limit", h.cfg.MaxConnections)
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	defer h.active.Add(-1)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already answered the request.
		slog.DebugContext(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}

	h.serve(r.Context(), newConn(ws, h.cfg.WriteTimeout))
}

// begin tracks a request unless the handler is closed.
func (h *Handler) begin() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions.Add(1)
	return true
}

func (h *Handler) acquire() bool {
	n := h.active.Add(1)
	if h.cfg.MaxConnections > 0 && n > int64(h.cfg.MaxConnections) {
		h.active.Add(-1)
		return false
	}
	return true
}

// Active returns the number of open sockets.
func (h *Handler) Active() int {
	return int(h.active.Load())
}

// Close refuses new sockets, asks open ones to go away and waits for their
// sessions to end or ctx to expire.
func (h *Handler) Close(ctx context.Context) error {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
	h.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) rejected(reason string) {
	if h.metrics != nil {
		h.metrics.Rejected.WithLabelValues(reason).Inc()
	}
}
