package controller

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/roomsync/internal/playback"
	"github.com/sharetube/roomsync/internal/push"
	"github.com/sharetube/roomsync/internal/repository/connection/inmemory"
	roomRedis "github.com/sharetube/roomsync/internal/repository/room/redis"
	"github.com/sharetube/roomsync/internal/roomclient"
	"github.com/sharetube/roomsync/internal/service/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner = "owner@x.io"
	guest = "guest@x.io"
)

type testRelay struct {
	srv   *httptest.Server
	redis *miniredis.Miniredis
	token func(email string) string
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	logger := slog.Default()
	service := room.NewService(
		roomRedis.NewRepo(rc, logger, roomRedis.Config{}),
		inmemory.NewRepo(logger),
		logger,
		room.Config{Secret: "secret", HeartbeatInterval: time.Hour},
	)

	srv := httptest.NewServer(NewController(service, logger).Mux())
	t.Cleanup(srv.Close)

	return &testRelay{
		srv:   srv,
		redis: mr,
		token: func(email string) string {
			token, err := service.IssueToken(email, 0)
			require.NoError(t, err)
			return token
		},
	}
}

func (r *testRelay) client(email string) *roomclient.Client {
	return roomclient.New(r.srv.URL, r.token(email), nil, slog.Default())
}

func (r *testRelay) open(t *testing.T, transport push.Transport) <-chan push.Event {
	t.Helper()

	events := make(chan push.Event, 16)
	stop := push.NewClient(transport, slog.Default()).Open(
		func(e push.Event) { events <- e },
		func(error) {},
	)
	t.Cleanup(stop)

	return events
}

func waitEvent(t *testing.T, events <-chan push.Event, name string) push.Event {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Name == name {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", name)
			return push.Event{}
		}
	}
}

func TestAuthRequired(t *testing.T) {
	relay := newTestRelay(t)

	resp, err := http.Get(relay.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(relay.srv.URL+"/api/room/join", "application/json", strings.NewReader(`{"ownerEmail":"owner@x.io"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err = roomclient.New(relay.srv.URL, "garbage", nil, slog.Default()).Join(context.Background(), owner)
	assert.ErrorIs(t, err, roomclient.ErrUnauthorized)
}

func TestJoinAndShare(t *testing.T) {
	relay := newTestRelay(t)
	ctx := context.Background()

	result, err := relay.client(guest).Join(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "joined the room", result.Message)
	assert.Nil(t, result.CurrentMusic)

	music := playback.State{VideoID: "aaaaaaaaaaa", IsPlaying: true, ProgressMs: 3000, OwnerEmail: owner}
	require.NoError(t, relay.client(owner).Share(ctx, music))

	result, err = relay.client("late@x.io").Join(ctx, owner)
	require.NoError(t, err)
	require.NotNil(t, result.CurrentMusic)
	assert.Equal(t, music, *result.CurrentMusic)

	// a guest cannot speak for the owner
	assert.Error(t, relay.client(guest).Share(ctx, music))

	require.NoError(t, relay.client(guest).Leave(ctx))
	assert.False(t, relay.redis.Exists("user:location:"+guest))
}

func TestShareForAnotherOwnerIsForbidden(t *testing.T) {
	relay := newTestRelay(t)

	music := playback.State{VideoID: "aaaaaaaaaaa", IsPlaying: true, OwnerEmail: owner}
	err := relay.client(guest).Share(context.Background(), music)
	assert.ErrorIs(t, err, roomclient.ErrForbidden)
	assert.NotErrorIs(t, err, roomclient.ErrRoomFull)
}

func TestJoinValidation(t *testing.T) {
	relay := newTestRelay(t)
	ctx := context.Background()

	_, err := relay.client(guest).Join(ctx, "not-an-email")
	var statusErr *roomclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)

	_, err = relay.client(owner).Join(ctx, owner)
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
}

func TestPushOverSSE(t *testing.T) {
	relay := newTestRelay(t)
	ctx := context.Background()

	events := relay.open(t, push.NewSSE(relay.srv.URL+"/api/connect", relay.token(guest), nil))
	connect := waitEvent(t, events, push.EventConnect)
	assert.NotEmpty(t, connect.Data)
	assert.True(t, relay.redis.Exists("status:"+guest))

	_, err := relay.client(guest).Join(ctx, owner)
	require.NoError(t, err)

	music := playback.State{VideoID: "aaaaaaaaaaa", IsPlaying: true, ProgressMs: 1500, OwnerEmail: owner}
	require.NoError(t, relay.client(owner).Share(ctx, music))

	e := waitEvent(t, events, push.EventMusicSync)
	got, err := playback.ParseState(e.Data)
	require.NoError(t, err)
	assert.Equal(t, music, got)
}

func TestDisconnectLeavesRoom(t *testing.T) {
	relay := newTestRelay(t)
	ctx := context.Background()

	events := make(chan push.Event, 16)
	stop := push.NewClient(push.NewSSE(relay.srv.URL+"/api/connect", relay.token(guest), nil), slog.Default()).
		Open(func(e push.Event) { events <- e }, func(error) {})
	waitEvent(t, events, push.EventConnect)

	_, err := relay.client(guest).Join(ctx, owner)
	require.NoError(t, err)
	require.True(t, relay.redis.Exists("user:location:"+guest))

	stop()

	assert.Eventually(t, func() bool {
		return !relay.redis.Exists("user:location:"+guest) && !relay.redis.Exists("status:"+guest)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPushOverWS(t *testing.T) {
	relay := newTestRelay(t)
	ctx := context.Background()

	url := "ws" + strings.TrimPrefix(relay.srv.URL, "http") + "/ws/connect"
	events := relay.open(t, push.NewWS(url, relay.token(guest)))
	waitEvent(t, events, push.EventConnect)

	_, err := relay.client(guest).Join(ctx, owner)
	require.NoError(t, err)

	require.NoError(t, relay.client(owner).Share(ctx, playback.State{OwnerEmail: owner}))

	e := waitEvent(t, events, push.EventMusicSync)
	got, err := playback.ParseState(e.Data)
	require.NoError(t, err)
	assert.True(t, got.Idle())
	assert.Equal(t, owner, got.OwnerEmail)
}

func TestFramePayload(t *testing.T) {
	assert.JSONEq(t, `{"a":1}`, string(framePayload([]byte(`{"a":1}`))))
	assert.Equal(t, `"ping"`, string(framePayload([]byte("ping"))))
}
