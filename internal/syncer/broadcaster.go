// Package syncer moves playback state between an owner and its followers.
package syncer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sharetube/roomsync/internal/membership"
	"github.com/sharetube/roomsync/internal/playback"
	"github.com/sharetube/roomsync/internal/sched"
)

const (
	DefaultBroadcastInterval = 3 * time.Second
	shareTimeout             = 5 * time.Second
)

type Sharer interface {
	Share(ctx context.Context, state playback.State) error
}

type Snapshotter interface {
	Snapshot() playback.State
}

type Roles interface {
	Role() membership.Role
	OwnerEmail() string
}

type Broadcaster struct {
	sharer    Sharer
	source    Snapshotter
	roles     Roles
	scheduler sched.Scheduler
	interval  time.Duration
	logger    *slog.Logger

	ctx      context.Context
	stopTick func()
	closed   bool
	failures atomic.Int64
	// spawn runs a share off the loop.
	spawn func(func())
}

func NewBroadcaster(sharer Sharer, source Snapshotter, roles Roles, scheduler sched.Scheduler, interval time.Duration, logger *slog.Logger) *Broadcaster {
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}

	return &Broadcaster{
		sharer:    sharer,
		source:    source,
		roles:     roles,
		scheduler: scheduler,
		interval:  interval,
		logger:    logger,
		ctx:       context.Background(),
		spawn:     func(fn func()) { go fn() },
	}
}

// SetSpawn replaces how shares are run off the loop.
func (b *Broadcaster) SetSpawn(spawn func(func())) {
	b.spawn = spawn
}

// Start binds shares to ctx and arms the periodic tick if it is due.
func (b *Broadcaster) Start(ctx context.Context) {
	b.ctx = ctx
	b.Refresh()
}

// Refresh arms the periodic tick while owning a loaded track and disarms it
// otherwise.
func (b *Broadcaster) Refresh() {
	if b.closed {
		return
	}

	active := b.roles.Role() == membership.RoleOwner && !b.source.Snapshot().Idle()
	switch {
	case active && b.stopTick == nil:
		b.stopTick = b.scheduler.Every(b.interval, b.tick)
	case !active && b.stopTick != nil:
		b.stopTick()
		b.stopTick = nil
	}
}

// Push sends the current snapshot now. It does nothing unless owning, or once
// closed.
func (b *Broadcaster) Push(reason string) {
	if b.closed || b.roles.Role() != membership.RoleOwner {
		return
	}

	state := b.source.Snapshot()
	state.OwnerEmail = b.roles.OwnerEmail()
	b.logger.Debug("broadcasting playback state",
		"reason", reason,
		"video_id", state.VideoID,
		"is_playing", state.IsPlaying,
		"progress_ms", state.ProgressMs,
	)

	ctx := b.ctx
	b.spawn(func() {
		ctx, cancel := context.WithTimeout(ctx, shareTimeout)
		defer cancel()

		if err := b.sharer.Share(ctx, state); err != nil {
			n := b.failures.Add(1)
			b.logger.Warn("failed to share playback state", "error", err, "consecutive_failures", n)
			return
		}
		if n := b.failures.Swap(0); n > 0 {
			b.logger.Info("playback state sharing recovered", "failed_attempts", n)
		}
	})
}

// ConsecutiveFailures is the number of shares that failed since the last
// success.
func (b *Broadcaster) ConsecutiveFailures() int64 {
	return b.failures.Load()
}

func (b *Broadcaster) PlayerReady(string) {
	b.Push("ready")
}

func (b *Broadcaster) PlayerStateChanged(status playback.Status) {
	b.Refresh()
	if status == playback.StatusEmpty {
		b.Push("idle")
		return
	}
	b.Push(status.String())
}

func (b *Broadcaster) Close() {
	b.closed = true
	if b.stopTick != nil {
		b.stopTick()
		b.stopTick = nil
	}
}

func (b *Broadcaster) tick() {
	if b.source.Snapshot().Idle() {
		b.Refresh()
		return
	}
	b.Push("tick")
}
