package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is one viewer socket. It implements domain.Connection; identity is
// the pointer.
type Conn struct {
	id           uuid.UUID
	ws           *websocket.Conn
	writeTimeout time.Duration

	// gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{id: uuid.New(), ws: ws, writeTimeout: writeTimeout}
}

func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Send writes one text frame. The write is bounded by the write timeout and
// by ctx. A failed write leaves the socket unusable, so Send closes it; the
// session's read loop then observes the failure and unregisters the
// connection.
func (c *Conn) Send(ctx context.Context, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.UnderlyingConn().SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
		_ = c.ws.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (c *Conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// closeWith sends a close frame and tears the socket down.
func (c *Conn) closeWith(code int, text string) {
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(c.writeTimeout))
	_ = c.ws.Close()
}

func (c *Conn) Close() error {
	return c.ws.Close()
}
