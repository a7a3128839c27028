package sched

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DeferredScheduler is the last-resort tier: every task is a timer callback
// fired after its delay (zero by default).
type DeferredScheduler struct {
	base    context.Context
	stop    context.CancelFunc
	runner  *runner
	pending map[*time.Timer]context.CancelFunc
	mu      sync.Mutex
	closed  bool
}

// NewDeferred creates a deferred tier.
func NewDeferred(logger *slog.Logger) *DeferredScheduler {
	base, stop := context.WithCancel(context.Background())
	return &DeferredScheduler{
		base:    base,
		stop:    stop,
		runner:  &runner{logger: resolveLogger(logger), kind: KindDeferred},
		pending: make(map[*time.Timer]context.CancelFunc),
	}
}

// Kind implements Scheduler.
func (d *DeferredScheduler) Kind() Kind { return KindDeferred }

// Schedule implements Scheduler. Priority is ignored.
func (d *DeferredScheduler) Schedule(task Task, opts Options) CancelFunc {
	ctx, cancel := context.WithCancel(d.base)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		cancel()
		return func() {}
	}

	var timer *time.Timer
	timer = time.AfterFunc(opts.Delay, func() {
		d.mu.Lock()
		_, ok := d.pending[timer]
		delete(d.pending, timer)
		d.mu.Unlock()
		if !ok {
			return
		}
		d.runner.run(ctx, task)
		cancel()
	})
	d.pending[timer] = cancel

	return func() {
		cancel()
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.pending[timer]; ok {
			timer.Stop()
			delete(d.pending, timer)
		}
	}
}

// Pending returns the number of tasks not yet fired.
func (d *DeferredScheduler) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close implements Scheduler.
func (d *DeferredScheduler) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for t := range d.pending {
		t.Stop()
	}
	d.pending = map[*time.Timer]context.CancelFunc{}
	d.mu.Unlock()
	d.stop()
}
