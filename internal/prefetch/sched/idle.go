package sched

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Default idle tier parameters.
const (
	DefaultIdleThreshold = 50 * time.Millisecond
	DefaultIdleTimeout   = 2 * time.Second
	DefaultIdleBudget    = 50 * time.Millisecond
)

// ActivitySource reports when the host last handled interactive work.
type ActivitySource interface {
	LastActivity() time.Time
}

// IdleConfig tunes the idle tier.
type IdleConfig struct {
	Logger *slog.Logger

	// Threshold is how long the host must be quiet before a task runs.
	Threshold time.Duration

	// Timeout forces a task to run even if the host never goes quiet.
	Timeout time.Duration

	// Budget is the deadline placed on each task's context.
	Budget time.Duration
}

func (c IdleConfig) applyDefaults() IdleConfig {
	if c.Threshold <= 0 {
		c.Threshold = DefaultIdleThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultIdleTimeout
	}
	if c.Budget <= 0 {
		c.Budget = DefaultIdleBudget
	}
	return c
}

// IdleScheduler is the deadline-aware idle tier.
type IdleScheduler struct {
	activity ActivitySource
	base     context.Context
	stop     context.CancelFunc
	runner   *runner
	pending  map[*idleTask]struct{}
	cfg      IdleConfig
	mu       sync.Mutex
	closed   bool
}

type idleTask struct {
	ctx      context.Context
	task     Task
	cancel   context.CancelFunc
	timer    *time.Timer
	deadline time.Time
}

// NewIdle creates an idle tier. It fails when activity is nil.
func NewIdle(activity ActivitySource, cfg IdleConfig) (*IdleScheduler, error) {
	if activity == nil {
		return nil, errors.New("idle scheduling needs an activity source")
	}
	cfg = cfg.applyDefaults()
	base, stop := context.WithCancel(context.Background())
	return &IdleScheduler{
		activity: activity,
		base:     base,
		stop:     stop,
		runner:   &runner{logger: resolveLogger(cfg.Logger), kind: KindIdle},
		pending:  make(map[*idleTask]struct{}),
		cfg:      cfg,
	}, nil
}

// Kind implements Scheduler.
func (s *IdleScheduler) Kind() Kind { return KindIdle }

// Schedule implements Scheduler. Priority is ignored.
func (s *IdleScheduler) Schedule(task Task, opts Options) CancelFunc {
	ctx, cancel := context.WithCancel(s.base)
	t := &idleTask{
		ctx:      ctx,
		task:     task,
		cancel:   cancel,
		deadline: time.Now().Add(opts.Delay + s.cfg.Timeout),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		cancel()
		return func() {}
	}
	s.pending[t] = struct{}{}
	t.timer = time.AfterFunc(opts.Delay, func() { s.attempt(t) })

	return func() { s.drop(t) }
}

// attempt runs t if the host is idle or t's timeout passed, and otherwise
// re-arms its timer for when the host could next be idle.
func (s *IdleScheduler) attempt(t *idleTask) {
	now := time.Now()
	quiet := now.Sub(s.activity.LastActivity())
	if quiet < s.cfg.Threshold && now.Before(t.deadline) {
		wait := s.cfg.Threshold - quiet
		if left := t.deadline.Sub(now); left < wait {
			wait = left
		}
		s.mu.Lock()
		if _, ok := s.pending[t]; ok {
			t.timer.Reset(wait)
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	if _, ok := s.pending[t]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, t)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(t.ctx, s.cfg.Budget)
	defer cancel()
	s.runner.run(ctx, t.task)
	t.cancel()
}

func (s *IdleScheduler) drop(t *idleTask) {
	t.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[t]; ok {
		t.timer.Stop()
		delete(s.pending, t)
	}
}

// Pending returns the number of tasks not yet run.
func (s *IdleScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close implements Scheduler.
func (s *IdleScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for t := range s.pending {
		t.timer.Stop()
	}
	s.pending = map[*idleTask]struct{}{}
	s.mu.Unlock()
	s.stop()
}

// Activity is a settable ActivitySource. Hosts call Touch on every
// interactive event.
type Activity struct {
	last time.Time
	mu   sync.RWMutex
}

// Touch records interactive work at now.
func (a *Activity) Touch(now time.Time) {
	a.mu.Lock()
	a.last = now
	a.mu.Unlock()
}

// LastActivity implements ActivitySource.
func (a *Activity) LastActivity() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}
