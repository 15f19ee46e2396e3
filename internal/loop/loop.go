// Package loop runs client work on a single goroutine. Timers post their
// callbacks back onto the loop, so nothing the loop owns is ever touched
// concurrently.
package loop

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// Task is a scheduled callback.
type Task interface {
	// Cancel prevents any further run of the callback. Calling it from the
	// loop guarantees the callback does not run afterwards.
	Cancel()
}

// Scheduler is the time source and timer facility of a loop.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Task
	Every(d time.Duration, fn func()) Task
}

const postBuffer = 256

// Loop is the real-time Scheduler. Work reaches it through Post.
type Loop struct {
	posts chan func()
	done  chan struct{}
}

func New() *Loop {
	return &Loop{
		posts: make(chan func(), postBuffer),
		done:  make(chan struct{}),
	}
}

// Post queues fn to run on the loop. It reports false once the loop has
// stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.posts <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run executes posted work until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.posts:
			l.run(fn)
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("[loop] task panicked: %v\n", r)
		}
	}()
	fn()
}

func (l *Loop) Now() time.Time { return time.Now() }

type timerTask struct {
	cancelled atomic.Bool
	timer     *time.Timer
	stop      chan struct{}
}

func (t *timerTask) Cancel() {
	if t.cancelled.Swap(true) {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.stop != nil {
		close(t.stop)
	}
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) Task {
	t := &timerTask{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if !t.cancelled.Load() {
				fn()
			}
		})
	})
	return t
}

func (l *Loop) Every(d time.Duration, fn func()) Task {
	t := &timerTask{stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Post(func() {
					if !t.cancelled.Load() {
						fn()
					}
				})
			case <-t.stop:
				return
			case <-l.done:
				return
			}
		}
	}()
	return t
}
