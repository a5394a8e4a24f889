package reconnect

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/sharetube/roomsync/internal/membership"
	"github.com/sharetube/roomsync/internal/push"
	"github.com/sharetube/roomsync/internal/sched"
	"github.com/sharetube/roomsync/pkg/pushrouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stream struct {
	onEvent func(push.Event)
	onClose func(error)
	closed  bool
}

type fakeOpener struct {
	streams []*stream
}

func (o *fakeOpener) Open(onEvent func(push.Event), onClose func(error)) func() {
	s := &stream{onEvent: onEvent, onClose: onClose}
	o.streams = append(o.streams, s)
	return func() { s.closed = true }
}

func (o *fakeOpener) last() *stream {
	return o.streams[len(o.streams)-1]
}

type roles struct {
	role  membership.Role
	owner string
}

func (r *roles) Role() membership.Role { return r.role }
func (r *roles) OwnerEmail() string    { return r.owner }

type fixture struct {
	manager *Manager
	opener  *fakeOpener
	manual  *sched.Manual
	roles   *roles
	router  *pushrouter.Router
	joins   []string
}

func newFixture(t *testing.T, role membership.Role, owner string) *fixture {
	t.Helper()

	f := &fixture{
		opener: &fakeOpener{},
		manual: sched.NewManual(),
		roles:  &roles{role: role, owner: owner},
		router: pushrouter.New(),
	}
	f.router.Handle(push.EventConnect, func(context.Context, []byte) error { return nil })
	f.router.Handle(push.EventHeartbeat, func(context.Context, []byte) error { return nil })

	post := func(fn func()) bool {
		fn()
		return true
	}
	f.manager = NewManager(f.opener, f.manual, post, f.roles, f.router,
		func(owner string) { f.joins = append(f.joins, owner) },
		slog.Default(), Config{})

	return f
}

func TestRejoinAfterReconnect(t *testing.T) {
	f := newFixture(t, membership.RoleFollower, "a@x.com")

	f.manager.Start()
	first := f.opener.last()
	first.onEvent(push.Event{Name: push.EventConnect, Data: []byte("c1")})
	require.Equal(t, StateConnected, f.manager.State())
	require.Len(t, f.joins, 1)

	first.onClose(errors.New("broken pipe"))
	assert.Equal(t, StateDisconnected, f.manager.State())
	assert.True(t, first.closed)

	f.manual.Advance(DefaultRetryDelay)
	require.Len(t, f.opener.streams, 2)
	assert.Equal(t, StateConnecting, f.manager.State())

	f.opener.last().onEvent(push.Event{Name: push.EventConnect, Data: []byte("c2")})
	// late events from the first stream are ignored
	first.onEvent(push.Event{Name: push.EventConnect, Data: []byte("c1")})

	assert.Equal(t, []string{"a@x.com", "a@x.com"}, f.joins)
	assert.Equal(t, StateConnected, f.manager.State())
}

func TestOwnerStaysDisconnectedUntilEnsured(t *testing.T) {
	f := newFixture(t, membership.RoleOwner, "me@x.com")

	f.manager.Start()
	f.opener.last().onEvent(push.Event{Name: push.EventConnect})
	f.opener.last().onClose(errors.New("reset"))

	f.manual.Advance(time.Minute)
	assert.Len(t, f.opener.streams, 1)
	assert.Equal(t, StateDisconnected, f.manager.State())
	assert.Empty(t, f.joins)

	f.manager.Ensure()
	assert.Len(t, f.opener.streams, 2)
	assert.Equal(t, StateConnecting, f.manager.State())
}

func TestSingleRetryPerFailure(t *testing.T) {
	f := newFixture(t, membership.RoleFollower, "a@x.com")

	f.manager.Start()
	s := f.opener.last()
	s.onClose(errors.New("reset"))
	s.onClose(errors.New("reset again"))

	f.manual.Advance(DefaultRetryDelay)
	assert.Len(t, f.opener.streams, 2)

	f.manual.Advance(time.Minute)
	assert.Len(t, f.opener.streams, 2)
}

func TestEnsureSupersedesPendingRetry(t *testing.T) {
	f := newFixture(t, membership.RoleFollower, "a@x.com")

	f.manager.Start()
	f.opener.last().onClose(errors.New("reset"))
	f.manager.Ensure()
	require.Len(t, f.opener.streams, 2)

	f.manual.Advance(DefaultRetryDelay)
	assert.Len(t, f.opener.streams, 2)
}

func TestHeartbeatLiveness(t *testing.T) {
	f := newFixture(t, membership.RoleFollower, "a@x.com")

	f.manager.Start()
	f.opener.last().onEvent(push.Event{Name: push.EventConnect})

	f.manual.Advance(100 * time.Second)
	f.opener.last().onEvent(push.Event{Name: push.EventHeartbeat})
	f.manual.Advance(100 * time.Second)
	assert.Equal(t, StateConnected, f.manager.State())

	f.manual.Advance(20 * time.Second)
	assert.Equal(t, StateDisconnected, f.manager.State())

	f.manual.Advance(DefaultRetryDelay)
	assert.Len(t, f.opener.streams, 2)
}

func TestEventsAreDispatched(t *testing.T) {
	f := newFixture(t, membership.RoleFollower, "a@x.com")

	var payloads []string
	f.router.Handle(push.EventMusicSync, func(_ context.Context, payload []byte) error {
		payloads = append(payloads, string(payload))
		return nil
	})

	f.manager.Start()
	f.opener.last().onEvent(push.Event{Name: push.EventMusicSync, Data: []byte(`{"videoId":null}`)})
	f.opener.last().onEvent(push.Event{Name: "unknown"})

	assert.Equal(t, []string{`{"videoId":null}`}, payloads)
}

func TestClose(t *testing.T) {
	f := newFixture(t, membership.RoleFollower, "a@x.com")

	f.manager.Start()
	s := f.opener.last()
	f.manager.Close()

	assert.Equal(t, StateClosed, f.manager.State())
	assert.True(t, s.closed)
	assert.Equal(t, 0, f.manual.Pending())

	s.onClose(errors.New("closed"))
	f.manager.Ensure()
	assert.Len(t, f.opener.streams, 1)
}
