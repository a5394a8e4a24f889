package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// Frame is the WebSocket envelope for a push event.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type WS struct {
	url    string
	token  string
	dialer *websocket.Dialer
}

func NewWS(url, token string) *WS {
	return &WS{url: url, token: token, dialer: websocket.DefaultDialer}
}

func (w *WS) Stream(ctx context.Context, emit func(Event)) error {
	header := http.Header{}
	if w.token != "" {
		header.Set("Authorization", "Bearer "+w.token)
	}

	conn, resp, err := w.dialer.DialContext(ctx, w.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		}
		return fmt.Errorf("failed to dial: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ErrStreamClosed
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}

		emit(Event{Name: frame.Type, Data: frame.Payload})
	}
}
