package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualRunsTasksInDueOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var order []string
	m.AfterFunc(30*time.Millisecond, func() { order = append(order, "c") })
	m.AfterFunc(10*time.Millisecond, func() { order = append(order, "a") })
	m.AfterFunc(10*time.Millisecond, func() { order = append(order, "b") })

	m.Advance(9 * time.Millisecond)
	assert.Empty(t, order)
	m.Advance(25 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Zero(t, m.Pending())
	assert.Equal(t, time.Unix(0, 0).Add(34*time.Millisecond), m.Now())
}

func TestManualEveryAndCancel(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	ticks := 0
	var task Task
	task = m.Every(100*time.Millisecond, func() {
		ticks++
		if ticks == 3 {
			task.Cancel()
		}
	})
	m.Advance(time.Second)
	assert.Equal(t, 3, ticks)
	assert.Zero(t, m.Pending())
}

func TestManualTasksScheduledDuringAdvance(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var at []time.Duration
	m.AfterFunc(10*time.Millisecond, func() {
		at = append(at, m.Now().Sub(time.Unix(0, 0)))
		m.AfterFunc(10*time.Millisecond, func() {
			at = append(at, m.Now().Sub(time.Unix(0, 0)))
		})
	})
	m.Advance(50 * time.Millisecond)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, at)
}

func TestLoopRunsPostedWorkInOrder(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(stopped)
	}()

	got := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		require.True(t, l.Post(func() { got <- i }))
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, i, <-got)
	}

	require.True(t, l.Post(func() { panic("boom") }))
	done := make(chan struct{})
	require.True(t, l.Post(func() { close(done) }))
	<-done

	cancel()
	<-stopped
	assert.False(t, l.Post(func() {}))
}

func TestLoopTimers(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	fired := make(chan struct{})
	l.AfterFunc(5*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}

	var never atomic.Bool
	l.AfterFunc(20*time.Millisecond, func() { never.Store(true) }).Cancel()

	var ticks atomic.Int32
	every := l.Every(5*time.Millisecond, func() { ticks.Add(1) })
	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, 2*time.Second, time.Millisecond)
	every.Cancel()

	time.Sleep(40 * time.Millisecond)
	assert.False(t, never.Load())
}
