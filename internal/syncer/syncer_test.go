package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sharetube/roomsync/internal/membership"
	"github.com/sharetube/roomsync/internal/playback"
	"github.com/sharetube/roomsync/internal/sched"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	videoA = "aaaaaaaaaaa"
	videoB = "bbbbbbbbbbb"
)

type roles struct {
	role  membership.Role
	owner string
}

func (r *roles) Role() membership.Role { return r.role }
func (r *roles) OwnerEmail() string    { return r.owner }

type recordingSharer struct {
	mu     sync.Mutex
	states []playback.State
	err    error
}

func (s *recordingSharer) Share(_ context.Context, state playback.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.states = append(s.states, state)
	return nil
}

func (s *recordingSharer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *recordingSharer) last() playback.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[len(s.states)-1]
}

type fanout []playback.Listener

func (f fanout) PlayerReady(videoID string) {
	for _, l := range f {
		l.PlayerReady(videoID)
	}
}

func (f fanout) PlayerStateChanged(status playback.Status) {
	for _, l := range f {
		l.PlayerStateChanged(status)
	}
}

type ownerFixture struct {
	manual      *sched.Manual
	controller  *playback.Controller
	broadcaster *Broadcaster
	sharer      *recordingSharer
	roles       *roles
}

func newOwnerFixture(t *testing.T, role membership.Role) ownerFixture {
	t.Helper()

	m := sched.NewManual()
	player := playback.NewVirtualPlayer(m, playback.VirtualPlayerConfig{LoadDelay: time.Second, Duration: time.Minute})
	controller := playback.NewController(player, m, slog.Default(), playback.Config{})
	r := &roles{role: role, owner: "owner@x.io"}
	sharer := &recordingSharer{}
	b := NewBroadcaster(sharer, controller, r, m, 0, slog.Default())
	b.spawn = func(fn func()) { fn() }
	controller.SetListener(b)

	return ownerFixture{manual: m, controller: controller, broadcaster: b, sharer: sharer, roles: r}
}

func TestBroadcasterTicksWhileOwningLoadedTrack(t *testing.T) {
	f := newOwnerFixture(t, membership.RoleOwner)
	f.broadcaster.Start(context.Background())
	assert.Equal(t, 0, f.manual.Pending())

	f.controller.Load(videoA)
	f.manual.Advance(time.Second)
	require.Equal(t, playback.StatusPlaying, f.controller.Status())
	afterReady := f.sharer.count()
	assert.Equal(t, 3, afterReady)
	assert.Equal(t, playback.State{VideoID: videoA, IsPlaying: true, ProgressMs: 0, OwnerEmail: "owner@x.io"}, f.sharer.last())

	f.manual.Advance(8 * time.Second)
	assert.Equal(t, afterReady+3, f.sharer.count())
	assert.Equal(t, int64(8000), f.sharer.last().ProgressMs)
}

func TestBroadcasterIdlePropagation(t *testing.T) {
	f := newOwnerFixture(t, membership.RoleOwner)
	f.broadcaster.Start(context.Background())

	f.controller.Load(videoA)
	f.manual.Advance(2 * time.Second)
	before := f.sharer.count()

	f.controller.Unload()
	assert.Equal(t, before+1, f.sharer.count())
	assert.Equal(t, playback.State{OwnerEmail: "owner@x.io"}, f.sharer.last())

	f.manual.Advance(time.Minute)
	assert.Equal(t, before+1, f.sharer.count())
	assert.Equal(t, 0, f.manual.Pending())
}

func TestBroadcasterInertWhileFollowing(t *testing.T) {
	f := newOwnerFixture(t, membership.RoleFollower)
	f.broadcaster.Start(context.Background())

	f.controller.Load(videoA)
	f.manual.Advance(30 * time.Second)
	f.controller.Pause()
	f.controller.Unload()

	assert.Equal(t, 0, f.sharer.count())
	assert.Equal(t, 0, f.manual.Pending())
}

func TestBroadcasterSilentAfterClose(t *testing.T) {
	f := newOwnerFixture(t, membership.RoleOwner)
	f.broadcaster.Start(context.Background())

	f.controller.Load(videoA)
	f.manual.Advance(time.Second)
	f.broadcaster.Close()
	before := f.sharer.count()

	f.broadcaster.Push("manual")
	f.controller.Pause()
	f.controller.Play()
	f.manual.Advance(10 * time.Second)

	assert.Equal(t, before, f.sharer.count())
}

func TestBroadcasterCountsFailures(t *testing.T) {
	f := newOwnerFixture(t, membership.RoleOwner)
	f.sharer.err = errors.New("connection refused")

	f.broadcaster.Push("manual")
	f.broadcaster.Push("manual")
	assert.Equal(t, int64(2), f.broadcaster.ConsecutiveFailures())

	f.sharer.err = nil
	f.broadcaster.Push("manual")
	assert.Equal(t, int64(0), f.broadcaster.ConsecutiveFailures())
	assert.Equal(t, 1, f.sharer.count())
}

type fakeController struct {
	status   playback.Status
	videoID  string
	progress int64
	calls    []string
}

func (c *fakeController) Status() playback.Status { return c.status }
func (c *fakeController) VideoID() string         { return c.videoID }

func (c *fakeController) Snapshot() playback.State {
	return playback.State{VideoID: c.videoID, IsPlaying: c.status == playback.StatusPlaying, ProgressMs: c.progress}
}

func (c *fakeController) Load(videoID string) {
	c.calls = append(c.calls, "load:"+videoID)
	c.videoID = videoID
	c.status = playback.StatusLoading
	c.progress = 0
}

func (c *fakeController) Unload() {
	c.calls = append(c.calls, "unload")
	*c = fakeController{calls: c.calls}
}

func (c *fakeController) Play() {
	c.calls = append(c.calls, "play")
	c.status = playback.StatusPlaying
}

func (c *fakeController) Pause() {
	c.calls = append(c.calls, "pause")
	c.status = playback.StatusPaused
}

func (c *fakeController) Seek(ms int64) {
	c.calls = append(c.calls, fmt.Sprintf("seek:%d", ms))
	c.progress = ms
}

func follower(owner string) *roles {
	return &roles{role: membership.RoleFollower, owner: owner}
}

func TestReceiverConvergence(t *testing.T) {
	c := &fakeController{status: playback.StatusPaused, videoID: videoA, progress: 10000}
	r := NewReceiver(c, follower("b@x.com"), 0, slog.Default())

	state := playback.State{VideoID: videoA, IsPlaying: true, ProgressMs: 13000, OwnerEmail: "b@x.com"}
	require.True(t, r.Apply(state))
	assert.Equal(t, []string{"play", "seek:13000"}, c.calls)

	// the same state again changes nothing
	require.True(t, r.Apply(state))
	assert.Equal(t, []string{"play", "seek:13000"}, c.calls)

	// drift within tolerance is left alone
	state.ProgressMs = 15000
	require.True(t, r.Apply(state))
	assert.Equal(t, []string{"play", "seek:13000"}, c.calls)

	state.ProgressMs = 15001
	require.True(t, r.Apply(state))
	assert.Equal(t, []string{"play", "seek:13000", "seek:15001"}, c.calls)

	state.IsPlaying = false
	require.True(t, r.Apply(state))
	assert.Equal(t, "pause", c.calls[len(c.calls)-1])
}

func TestReceiverFiltersOtherOwners(t *testing.T) {
	c := &fakeController{status: playback.StatusPaused, videoID: videoA}
	r := NewReceiver(c, follower("b@x.com"), 0, slog.Default())

	ok := r.Apply(playback.State{VideoID: videoB, IsPlaying: true, ProgressMs: 50000, OwnerEmail: "c@x.com"})
	assert.False(t, ok)
	assert.Empty(t, c.calls)
	_, has := r.Last()
	assert.False(t, has)
}

func TestReceiverInertWhileOwning(t *testing.T) {
	c := &fakeController{status: playback.StatusPlaying, videoID: videoA}
	r := NewReceiver(c, &roles{role: membership.RoleOwner, owner: "me@x.com"}, 0, slog.Default())

	assert.False(t, r.Apply(playback.State{OwnerEmail: "me@x.com"}))
	r.PlayerReady(videoA)
	assert.Empty(t, c.calls)
}

func TestReceiverIdlePropagation(t *testing.T) {
	c := &fakeController{status: playback.StatusPlaying, videoID: videoA, progress: 4000}
	r := NewReceiver(c, follower("b@x.com"), 0, slog.Default())

	require.True(t, r.Apply(playback.State{IsPlaying: true, ProgressMs: 999, OwnerEmail: "b@x.com"}))
	require.True(t, r.Apply(playback.State{OwnerEmail: "b@x.com"}))

	assert.Equal(t, []string{"unload"}, c.calls)
	assert.Equal(t, playback.StatusEmpty, c.status)
}

func TestReceiverWaitsForReady(t *testing.T) {
	c := &fakeController{}
	r := NewReceiver(c, follower("b@x.com"), 0, slog.Default())

	require.True(t, r.Apply(playback.State{VideoID: videoB, IsPlaying: true, ProgressMs: 5000, OwnerEmail: "b@x.com"}))
	assert.Equal(t, []string{"load:" + videoB}, c.calls)

	// a second push for the same video while loading does nothing
	require.True(t, r.Apply(playback.State{VideoID: videoB, IsPlaying: true, ProgressMs: 8000, OwnerEmail: "b@x.com"}))
	assert.Equal(t, []string{"load:" + videoB}, c.calls)

	c.status = playback.StatusPaused
	r.PlayerReady(videoB)
	assert.Equal(t, []string{"load:" + videoB, "play", "seek:8000"}, c.calls)
}

func TestReceiverFollowsWithRealController(t *testing.T) {
	m := sched.NewManual()
	player := playback.NewVirtualPlayer(m, playback.VirtualPlayerConfig{LoadDelay: time.Second, Duration: time.Minute})
	controller := playback.NewController(player, m, slog.Default(), playback.Config{})
	r := NewReceiver(controller, follower("b@x.com"), 0, slog.Default())
	controller.SetListener(r)

	require.True(t, r.Apply(playback.State{VideoID: videoA, IsPlaying: false, ProgressMs: 30000, OwnerEmail: "b@x.com"}))
	m.Advance(time.Second)

	assert.Equal(t, playback.StatusPaused, controller.Status())
	assert.Equal(t, int64(30000), controller.Snapshot().ProgressMs)
	assert.False(t, player.Playing())
}
