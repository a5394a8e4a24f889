// Package sched provides the single event loop that owns all playback state and
// the timers that feed it.
package sched

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

var ErrLoopStopped = errors.New("loop stopped")

// Scheduler is what loop-owned components use for time. Callbacks always run
// on the loop.
type Scheduler interface {
	Now() time.Time
	Every(d time.Duration, fn func()) (cancel func())
	After(d time.Duration, fn func()) (cancel func())
}

// Executor is a Scheduler that also accepts work from other goroutines.
type Executor interface {
	Scheduler
	Post(fn func()) bool
	Do(ctx context.Context, fn func()) error
}

const inboxSize = 256

// Loop runs posted closures one at a time on a single goroutine.
type Loop struct {
	clock  clock.Clock
	inbox  chan func()
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func NewLoop(clk clock.Clock, logger *slog.Logger) *Loop {
	if clk == nil {
		clk = clock.New()
	}

	return &Loop{
		clock:  clk,
		inbox:  make(chan func(), inboxSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Run processes posted closures until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.inbox:
			l.call(fn)
		}
	}
}

func (l *Loop) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("recovered panic in event loop", "panic", r)
		}
	}()

	fn()
}

// Post enqueues fn. It must not be called from the loop goroutine while the
// inbox may be full.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.inbox <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it. Never call Do from the loop itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopStopped
	}
}

// Every posts fn to the loop every d until cancel is called. Ticks already
// queued when cancel runs are dropped.
func (l *Loop) Every(d time.Duration, fn func()) (cancel func()) {
	ticker := l.clock.Ticker(d)
	stop := make(chan struct{})
	var stopped atomic.Bool

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-l.done:
				return
			case <-ticker.C:
				l.Post(func() {
					if !stopped.Load() {
						fn()
					}
				})
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stopped.Store(true)
			ticker.Stop()
			close(stop)
		})
	}
}

// After posts fn to the loop once after d unless cancelled first.
func (l *Loop) After(d time.Duration, fn func()) (cancel func()) {
	var stopped atomic.Bool
	timer := l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if !stopped.Load() {
				fn()
			}
		})
	})

	return func() {
		stopped.Store(true)
		timer.Stop()
	}
}
