package push

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event:connect\ndata:conn-1\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "event: music-sync\ndata: {\"videoId\":null,\n")
		fmt.Fprint(w, "data: \"ownerEmail\":\"o@x.io\"}\n\n")
		fmt.Fprint(w, "data:plain\n\n")
	}))
	defer srv.Close()

	var events []Event
	err := NewSSE(srv.URL, "token-1", srv.Client()).Stream(context.Background(), func(e Event) {
		events = append(events, e)
	})

	assert.ErrorIs(t, err, ErrStreamClosed)
	require.Len(t, events, 3)
	assert.Equal(t, Event{Name: EventConnect, Data: []byte("conn-1")}, events[0])
	assert.Equal(t, EventMusicSync, events[1].Name)
	assert.Equal(t, "{\"videoId\":null,\n\"ownerEmail\":\"o@x.io\"}", string(events[1].Data))
	assert.Equal(t, Event{Name: "message", Data: []byte("plain")}, events[2])
}

func TestSSEStreamRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewSSE(srv.URL, "", srv.Client()).Stream(context.Background(), func(Event) {
		t.Fatal("no events expected")
	})
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		assert.NoError(t, conn.WriteJSON(map[string]any{"type": EventConnect, "payload": "conn-1"}))
		assert.NoError(t, conn.WriteJSON(map[string]any{"type": EventHeartbeat, "payload": nil}))
		assert.NoError(t, conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	}))
	defer srv.Close()

	var events []Event
	err := NewWS(wsURL(srv), "token-1").Stream(context.Background(), func(e Event) {
		events = append(events, e)
	})

	assert.ErrorIs(t, err, ErrStreamClosed)
	require.Len(t, events, 2)
	assert.Equal(t, EventConnect, events[0].Name)
	assert.Equal(t, `"conn-1"`, string(events[0].Data))
	assert.Equal(t, EventHeartbeat, events[1].Name)
}

type blockingTransport struct{}

func (blockingTransport) Stream(ctx context.Context, emit func(Event)) error {
	emit(Event{Name: EventConnect})
	<-ctx.Done()
	return ctx.Err()
}

func TestClientOpenAndClose(t *testing.T) {
	c := NewClient(blockingTransport{}, slog.Default())

	events := make(chan Event, 1)
	closed := make(chan error, 1)
	stop := c.Open(func(e Event) { events <- e }, func(err error) { closed <- err })

	select {
	case e := <-events:
		assert.Equal(t, EventConnect, e.Name)
	case <-time.After(time.Second):
		t.Fatal("no connect event")
	}

	stop()
	select {
	case err := <-closed:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("stream did not close")
	}
}
