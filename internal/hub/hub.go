package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultDeliveryTimeout = 5 * time.Second
	DefaultMailboxSize     = 16

	commandBufferSize = 256
	stopTimeout       = 10 * time.Second
)

var (
	ErrConnectionRemoved = errors.New("connection removed")
	ErrMailboxFull       = errors.New("mailbox full")
	ErrDeliveryTimeout   = errors.New("delivery timed out")
)

// Recorder receives hub telemetry. It is called from the actor goroutine and
// from broadcasting goroutines.
type Recorder interface {
	ConnectionsChanged(count int)
	DeliveryCompleted(err error)
	BroadcastCompleted(targets int, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ConnectionsChanged(int)                {}
func (noopRecorder) DeliveryCompleted(error)               {}
func (noopRecorder) BroadcastCompleted(int, time.Duration) {}

type Config struct {
	// DeliveryTimeout bounds how long one broadcast waits for its deliveries.
	DeliveryTimeout time.Duration
	// MailboxSize is the number of messages queued per connection before
	// deliveries to it fail fast.
	MailboxSize int
}

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type addCmd struct {
	baseHubCmd
	conn  domain.Connection
	reply chan struct{}
}

type removeCmd struct {
	baseHubCmd
	conn  domain.Connection
	reply chan struct{}
}

type broadcastCmd struct {
	baseHubCmd
	ctx     context.Context
	sender  domain.Connection
	message []byte
	reply   chan []pending
}

type countCmd struct {
	baseHubCmd
	reply chan int
}

type stopCmd struct {
	baseHubCmd
}

type pending struct {
	conn   domain.Connection
	result chan error
}

// Hub is the process-wide set of live connections.
type Hub struct {
	cmdCh           chan hubCmd
	clock           clockwork.Clock
	recorder        Recorder
	deliveryTimeout time.Duration
	mailboxSize     int
	connections     map[domain.Connection]*mailbox
	done            chan struct{}
	stopOnce        sync.Once
}

// NewHub starts the hub actor. Zero config values select the defaults; a nil
// recorder discards telemetry.
func NewHub(cfg Config, clock clockwork.Clock, recorder Recorder) *Hub {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = DefaultMailboxSize
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}

	h := &Hub{
		cmdCh:           make(chan hubCmd, commandBufferSize),
		clock:           clock,
		recorder:        recorder,
		deliveryTimeout: cfg.DeliveryTimeout,
		mailboxSize:     cfg.MailboxSize,
		connections:     make(map[domain.Connection]*mailbox),
		done:            make(chan struct{}),
	}
	go h.run()
	return h
}

// Add registers conn. Adding a registered connection is a no-op.
func (h *Hub) Add(conn domain.Connection) {
	reply := make(chan struct{}, 1)
	if !h.submit(addCmd{conn: conn, reply: reply}) {
		return
	}
	h.await(reply)
}

// Remove unregisters conn. Deliveries still queued for it fail with
// ErrConnectionRemoved. Removing an unknown connection is a no-op.
func (h *Hub) Remove(conn domain.Connection) {
	reply := make(chan struct{}, 1)
	if !h.submit(removeCmd{conn: conn, reply: reply}) {
		return
	}
	h.await(reply)
}

// Count returns the number of registered connections, or 0 once stopped.
func (h *Hub) Count() int {
	reply := make(chan int, 1)
	if !h.submit(countCmd{reply: reply}) {
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-h.done:
		return 0
	}
}

// Broadcast delivers message to every connection registered at the time of
// the call and returns one Delivery per target.
func (h *Hub) Broadcast(ctx context.Context, message []byte) []domain.Delivery {
	return h.BroadcastFrom(ctx, nil, message)
}

// BroadcastFrom is Broadcast excluding sender.
//
// Each delivery succeeds or fails on its own; failures wrap
// domain.ErrDeliveryFailed and never affect the registered set. The call
// returns once every delivery resolved or the delivery timeout elapsed.
func (h *Hub) BroadcastFrom(ctx context.Context, sender domain.Connection, message []byte) []domain.Delivery {
	start := h.clock.Now()

	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	reply := make(chan []pending, 1)
	if !h.submit(broadcastCmd{ctx: sendCtx, sender: sender, message: message, reply: reply}) {
		return nil
	}

	var targets []pending
	select {
	case targets = <-reply:
	case <-h.done:
		return nil
	}

	deliveries := h.collect(ctx, targets)
	h.recorder.BroadcastCompleted(len(targets), h.clock.Since(start))
	return deliveries
}

// collect waits for results under a single deadline shared by all targets.
func (h *Hub) collect(ctx context.Context, targets []pending) []domain.Delivery {
	deliveries := make([]domain.Delivery, len(targets))
	if len(targets) == 0 {
		return deliveries
	}

	timer := h.clock.NewTimer(h.deliveryTimeout)
	defer timer.Stop()

	var cutoff error
	for i, p := range targets {
		var err error
		if cutoff != nil {
			err = poll(p, cutoff)
		} else {
			select {
			case err = <-p.result:
			case <-timer.Chan():
				cutoff = ErrDeliveryTimeout
				err = poll(p, cutoff)
			case <-ctx.Done():
				cutoff = ctx.Err()
				err = poll(p, cutoff)
			}
		}

		if err != nil {
			err = fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
		}
		h.recorder.DeliveryCompleted(err)
		deliveries[i] = domain.Delivery{Conn: p.conn, Err: err}
	}
	return deliveries
}

func poll(p pending, fallback error) error {
	select {
	case err := <-p.result:
		return err
	default:
		return fallback
	}
}

// Stop shuts the actor down and releases every mailbox. Further calls on the
// hub are no-ops.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		if !h.submit(stopCmd{}) {
			return
		}

		timeout := h.clock.NewTimer(stopTimeout)
		defer timeout.Stop()

		select {
		case <-h.done:
			slog.Info("Hub stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
		}
	})
}

func (h *Hub) submit(cmd hubCmd) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.cmdCh <- cmd:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) await(reply <-chan struct{}) {
	select {
	case <-reply:
	case <-h.done:
	}
}

func (h *Hub) run() {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			h.releaseAll()
		}
	}()

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case addCmd:
			h.handleAdd(c)
		case removeCmd:
			h.handleRemove(c)
		case broadcastCmd:
			c.reply <- h.handleBroadcast(c)
		case countCmd:
			c.reply <- len(h.connections)
		case stopCmd:
			slog.Info("Hub shutting down", "connections", len(h.connections))
			h.releaseAll()
			return
		default:
			slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) handleAdd(c addCmd) {
	defer close(c.reply)

	if _, exists := h.connections[c.conn]; exists {
		return
	}
	h.connections[c.conn] = newMailbox(c.conn, h.mailboxSize)
	h.recorder.ConnectionsChanged(len(h.connections))
	slog.Debug("Connection registered", "total_connections", len(h.connections))
}

func (h *Hub) handleRemove(c removeCmd) {
	defer close(c.reply)

	mb, exists := h.connections[c.conn]
	if !exists {
		return
	}
	mb.stop()
	delete(h.connections, c.conn)
	h.recorder.ConnectionsChanged(len(h.connections))
	slog.Debug("Connection unregistered", "remaining_connections", len(h.connections))
}

// handleBroadcast snapshots the set and enqueues one job per target. A full
// mailbox resolves immediately.
func (h *Hub) handleBroadcast(c broadcastCmd) []pending {
	targets := make([]pending, 0, len(h.connections))
	for conn, mb := range h.connections {
		if c.sender != nil && conn == c.sender {
			continue
		}

		j := newJob(c.ctx, c.message)
		if !mb.offer(j) {
			j.result <- ErrMailboxFull
		}
		targets = append(targets, pending{conn: conn, result: j.result})
	}
	return targets
}

func (h *Hub) releaseAll() {
	for conn, mb := range h.connections {
		mb.stop()
		delete(h.connections, conn)
	}
	h.recorder.ConnectionsChanged(0)
}
