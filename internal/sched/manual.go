package sched

import (
	"context"
	"sync"
	"time"
)

// Manual is a scheduler driven by Advance. Callbacks run on the goroutine
// calling Advance, in due-time order. Post and Do run fn immediately on the
// caller's goroutine.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	at        time.Duration
	every     time.Duration
	seq       int
	fn        func()
	cancelled bool
}

var manualEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return manualEpoch.Add(m.now)
}

func (m *Manual) Post(fn func()) bool {
	fn()
	return true
}

func (m *Manual) Do(_ context.Context, fn func()) error {
	fn()
	return nil
}

func (m *Manual) Every(d time.Duration, fn func()) (cancel func()) {
	return m.add(d, d, fn)
}

func (m *Manual) After(d time.Duration, fn func()) (cancel func()) {
	return m.add(d, 0, fn)
}

func (m *Manual) add(d, every time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{at: m.now + d, every: every, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		t.cancelled = true
	}
}

// Advance moves virtual time forward by d, firing every timer that falls due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}

		m.now = next.at
		if next.every > 0 {
			next.at += next.every
		} else {
			next.cancelled = true
		}
		fn := next.fn
		m.mu.Unlock()

		fn()
	}
}

// Pending returns the number of live timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}

func (m *Manual) nextDueLocked(target time.Duration) *manualTimer {
	live := m.timers[:0]
	var next *manualTimer
	for _, t := range m.timers {
		if t.cancelled {
			continue
		}
		live = append(live, t)
		if t.at > target {
			continue
		}
		if next == nil || t.at < next.at || (t.at == next.at && t.seq < next.seq) {
			next = t
		}
	}
	m.timers = live

	return next
}
