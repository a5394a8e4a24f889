package sched

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualOrdering(t *testing.T) {
	m := NewManual()

	var got []string
	m.After(3*time.Second, func() { got = append(got, "after3") })
	cancel := m.Every(time.Second, func() { got = append(got, "tick") })
	m.After(2*time.Second, func() { got = append(got, "after2") })

	m.Advance(3 * time.Second)
	assert.Equal(t, []string{"tick", "tick", "after2", "tick", "after3"}, got)

	cancel()
	m.Advance(5 * time.Second)
	assert.Len(t, got, 5)
	assert.Equal(t, 0, m.Pending())
}

func TestManualTimerAddedDuringCallback(t *testing.T) {
	m := NewManual()

	fired := 0
	m.After(time.Second, func() {
		m.After(time.Second, func() { fired++ })
	})

	m.Advance(1500 * time.Millisecond)
	assert.Equal(t, 0, fired)
	m.Advance(time.Second)
	assert.Equal(t, 1, fired)
}

func TestLoopDoRunsInOrder(t *testing.T) {
	l := NewLoop(clock.NewMock(), slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var seq []int
	for i := 0; i < 10; i++ {
		i := i
		require.True(t, l.Post(func() { seq = append(seq, i) }))
	}

	var snapshot []int
	require.NoError(t, l.Do(ctx, func() { snapshot = append(snapshot, seq...) }))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, snapshot)
}

func TestLoopRecoversPanics(t *testing.T) {
	l := NewLoop(clock.NewMock(), slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	l.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, l.Do(ctx, func() { ran = true }))
	assert.True(t, ran)
}

func TestLoopAfterAndCancel(t *testing.T) {
	mock := clock.NewMock()
	l := NewLoop(mock, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var fired, cancelled atomic.Int32
	l.After(3*time.Second, func() { fired.Add(1) })
	stop := l.After(3*time.Second, func() { cancelled.Add(1) })
	stop()

	mock.Add(3 * time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, l.Do(ctx, func() {}))
	assert.Equal(t, int32(0), cancelled.Load())
}

func TestLoopStopped(t *testing.T) {
	l := NewLoop(clock.NewMock(), slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), ErrLoopStopped)
}

func TestManualNow(t *testing.T) {
	m := NewManual()
	start := m.Now()

	var seen time.Time
	m.After(2*time.Second, func() { seen = m.Now() })
	m.Advance(5 * time.Second)

	assert.Equal(t, 2*time.Second, seen.Sub(start))
	assert.Equal(t, 5*time.Second, m.Now().Sub(start))
}

var (
	_ Executor = (*Loop)(nil)
	_ Executor = (*Manual)(nil)
)
