package connection

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("connection not found")
	ErrClosed   = errors.New("connection closed")
)

// Conn is one viewer's open push stream.
type Conn interface {
	ID() string
	Send(ctx context.Context, event string, data []byte) error
	Close()
}
