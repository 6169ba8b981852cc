// Package dispatch runs the hub's ordered work queue and the with
// primitive that applies actions to filtered states.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"aideck/internal/logging"
	"aideck/internal/metrics"
)

var ErrStopped = errors.New("dispatch loop stopped")

// Loop executes jobs one at a time in submission order. It is the
// process's single scheduling point: work queued while a job runs
// executes on a later turn, so per-state delivery order follows call
// order.
type Loop struct {
	mu      sync.Mutex
	queue   []job
	wake    chan struct{}
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	logger  *logging.Logger
	metrics *metrics.Registry
}

type job struct {
	run func()
}

type LoopOptions struct {
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

func NewLoop(opts LoopOptions) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	go l.run()
	return l
}

// Do runs fn on the loop and waits for it. A panic inside fn is
// recovered and returned as an error. Do must not be called from a job
// already running on the loop; use Defer for follow-up work.
func (l *Loop) Do(fn func() error) error {
	result := make(chan error, 1)
	if !l.enqueue(func() {
		result <- l.invoke(fn)
	}) {
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-l.done:
		// The loop stopped before reaching the job.
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

// Defer queues fn for a later turn without waiting. It reports whether
// the job was accepted; a stopped loop drops it.
func (l *Loop) Defer(fn func()) bool {
	return l.enqueue(func() {
		_ = l.invoke(func() error {
			fn()
			return nil
		})
	})
}

// DeferFor queues fn after the delay. The timer is not cancellable;
// fn must tolerate the world having moved on by the time it runs, and
// a loop stopped in the meantime drops the job.
func (l *Loop) DeferFor(delay time.Duration, fn func()) {
	if delay <= 0 {
		l.Defer(fn)
		return
	}
	time.AfterFunc(delay, func() {
		l.Defer(fn)
	})
}

// Stop ends the loop after the current job. Queued jobs are dropped.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()

	l.cancel()
	<-l.done
}

func (l *Loop) enqueue(run func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, job{run: run})
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (l *Loop) next() (job, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return job{}, false
	}
	j := l.queue[0]
	l.queue[0] = job{}
	l.queue = l.queue[1:]
	return j, true
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}
		j, ok := l.next()
		if !ok {
			select {
			case <-l.wake:
				continue
			case <-l.ctx.Done():
				return
			}
		}
		j.run()
		l.metrics.IncDispatchJob()
	}
}

// invoke runs fn with panic isolation. A recovered panic surfaces as
// an error so one bad action cannot take the loop down.
func (l *Loop) invoke(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
			l.metrics.IncDispatchPanic()
			if l.logger != nil {
				l.logger.Error("dispatch action panicked", map[string]string{
					"panic": fmt.Sprint(r),
				})
			}
		}
	}()
	return fn()
}
