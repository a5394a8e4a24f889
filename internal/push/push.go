// Package push reads the relay's server-push stream over SSE or WebSocket.
package push

import (
	"context"
	"errors"
	"log/slog"
)

const (
	EventConnect   = "connect"
	EventHeartbeat = "heartbeat"
	EventMusicSync = "music-sync"
)

var (
	ErrStreamClosed     = errors.New("push stream closed by server")
	ErrUnexpectedStatus = errors.New("unexpected push stream status")
)

type Event struct {
	Name string
	Data []byte
}

// Transport streams events until ctx is done or the connection fails. It never
// returns nil.
type Transport interface {
	Stream(ctx context.Context, emit func(Event)) error
}

type Client struct {
	transport Transport
	logger    *slog.Logger
}

func NewClient(transport Transport, logger *slog.Logger) *Client {
	return &Client{transport: transport, logger: logger}
}

// Open starts streaming in the background. onEvent and onClose are called from
// the streaming goroutine; onClose is called exactly once. The returned function
// stops the stream.
func (c *Client) Open(onEvent func(Event), onClose func(error)) (closeFn func()) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		err := c.transport.Stream(ctx, onEvent)
		if err == nil {
			err = ErrStreamClosed
		}
		if ctx.Err() == nil {
			c.logger.Warn("push stream ended", "error", err)
		}
		onClose(err)
	}()

	return cancel
}
