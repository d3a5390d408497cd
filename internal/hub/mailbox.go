package hub

import (
	"context"
	"sync"

	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
)

type job struct {
	ctx     context.Context
	message []byte
	result  chan error
}

func newJob(ctx context.Context, message []byte) job {
	return job{ctx: ctx, message: message, result: make(chan error, 1)}
}

// mailbox serializes deliveries to one connection.
type mailbox struct {
	conn     domain.Connection
	jobs     chan job
	done     chan struct{}
	stopOnce sync.Once
}

func newMailbox(conn domain.Connection, size int) *mailbox {
	mb := &mailbox{
		conn: conn,
		jobs: make(chan job, size),
		done: make(chan struct{}),
	}
	go mb.run()
	return mb
}

// offer enqueues without blocking. It reports false when the mailbox is full.
func (mb *mailbox) offer(j job) bool {
	select {
	case mb.jobs <- j:
		return true
	default:
		return false
	}
}

func (mb *mailbox) run() {
	for {
		// Removal takes priority over queued work.
		select {
		case <-mb.done:
			mb.drain()
			return
		default:
		}

		select {
		case j := <-mb.jobs:
			j.result <- mb.deliver(j)
		case <-mb.done:
			mb.drain()
			return
		}
	}
}

func (mb *mailbox) deliver(j job) error {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	return mb.conn.Send(j.ctx, j.message)
}

func (mb *mailbox) drain() {
	for {
		select {
		case j := <-mb.jobs:
			j.result <- ErrConnectionRemoved
		default:
			return
		}
	}
}

// stop resolves queued jobs right away but never waits for an in-flight
// Send; the actor must not block on a stalled connection.
func (mb *mailbox) stop() {
	mb.stopOnce.Do(func() {
		close(mb.done)
	})
	mb.drain()
}
