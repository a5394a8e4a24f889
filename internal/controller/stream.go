package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sharetube/roomsync/internal/push"
	"github.com/sharetube/roomsync/internal/repository/connection"
)

// sseConn writes events to a text/event-stream response. It must not be used
// once the handler that owns the response has returned, which Close enforces.
type sseConn struct {
	id     string
	w      http.ResponseWriter
	rc     *http.ResponseController
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newSSEConn(w http.ResponseWriter) *sseConn {
	return &sseConn{
		id:   uuid.NewString(),
		w:    w,
		rc:   http.NewResponseController(w),
		done: make(chan struct{}),
	}
}

func (c *sseConn) ID() string { return c.id }

func (c *sseConn) Done() <-chan struct{} { return c.done }

func (c *sseConn) Send(ctx context.Context, event string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return connection.ErrClosed
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.rc.SetWriteDeadline(deadline)
		defer c.rc.SetWriteDeadline(time.Time{})
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "event: %s\n", event)
	for _, line := range bytes.Split(data, []byte("\n")) {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteByte('\n')

	if _, err := c.w.Write(buf.Bytes()); err != nil {
		return err
	}

	return c.rc.Flush()
}

func (c *sseConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

type wsConn struct {
	id     string
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		conn: conn,
		done: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Done() <-chan struct{} { return c.done }

func (c *wsConn) Send(ctx context.Context, event string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return connection.ErrClosed
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	} else {
		c.conn.SetWriteDeadline(time.Time{})
	}

	return c.conn.WriteJSON(push.Frame{Type: event, Payload: framePayload(data)})
}

func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.done)

	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.conn.Close()
}

// framePayload embeds JSON as is and anything else as a JSON string.
func framePayload(data []byte) json.RawMessage {
	if json.Valid(data) {
		return data
	}

	quoted, _ := json.Marshal(string(data))
	return quoted
}
