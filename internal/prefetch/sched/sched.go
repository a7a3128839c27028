// Package sched runs background work without blocking interactive work.
//
// Every tier exposes the same Schedule(task, opts) → cancel contract:
//
//   - priority: a single worker draining a priority queue (user-blocking
//     before user-visible before background, FIFO within a level)
//   - idle: runs a task once the host has been quiet for a threshold, or
//     when its timeout elapses, with a deadline carried on the context
//   - deferred: zero-delay timer callbacks
//   - manual: tasks run only when the owner calls Tick, for deterministic
//     hosts such as replays and tests
//
// All tiers run at most one task at a time. Select picks the best tier the
// host supports, falling back priority → idle → deferred.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Priority orders tasks in tiers that support it.
type Priority int

const (
	PriorityUserBlocking Priority = iota
	PriorityUserVisible
	PriorityBackground
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityUserBlocking:
		return "user-blocking"
	case PriorityUserVisible:
		return "user-visible"
	case PriorityBackground:
		return "background"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Kind names a scheduler tier.
type Kind string

const (
	KindAuto     Kind = "auto"
	KindPriority Kind = "priority"
	KindIdle     Kind = "idle"
	KindDeferred Kind = "deferred"
	KindManual   Kind = "manual"
)

// ParseKind validates a tier name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindAuto, KindPriority, KindIdle, KindDeferred, KindManual:
		return k, nil
	case "":
		return KindAuto, nil
	default:
		return "", fmt.Errorf("unknown scheduler strategy %q", s)
	}
}

// Task is a unit of background work. ctx is canceled when the task is
// canceled or the scheduler closes; idle tasks also carry a deadline.
type Task func(ctx context.Context)

// CancelFunc cancels a scheduled task. Calling it after the task ran, or
// more than once, is a no-op.
type CancelFunc func()

// Options tunes one scheduling call.
type Options struct {
	Priority Priority
	// Delay postpones the task. Used to debounce writes.
	Delay time.Duration
}

// Scheduler is the cooperative scheduling capability.
type Scheduler interface {
	Schedule(task Task, opts Options) CancelFunc
	Kind() Kind
	// Close cancels everything pending and stops the tier.
	Close()
}

var (
	_ Scheduler = (*PriorityScheduler)(nil)
	_ Scheduler = (*IdleScheduler)(nil)
	_ Scheduler = (*DeferredScheduler)(nil)
	_ Scheduler = (*Manual)(nil)
)

// runner serializes task execution and keeps a panicking task from taking
// the tier down.
type runner struct {
	logger *slog.Logger
	kind   Kind
	mu     sync.Mutex
}

func (r *runner) run(ctx context.Context, task Task) {
	if ctx.Err() != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("sched: task panicked", "tier", r.kind, "panic", p)
		}
	}()
	task(ctx)
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// SelectOptions describes what the host offers.
type SelectOptions struct {
	Logger *slog.Logger

	// Activity enables the idle tier. Without it the idle tier is
	// unavailable.
	Activity ActivitySource

	// Strategy is the preferred tier. KindAuto tries every tier in order.
	Strategy Kind

	Idle IdleConfig
}

// Select builds the best available tier at or below opts.Strategy.
func Select(opts SelectOptions) Scheduler {
	logger := resolveLogger(opts.Logger)

	var chain []Kind
	switch opts.Strategy {
	case KindManual:
		return NewManual()
	case KindIdle:
		chain = []Kind{KindIdle, KindDeferred}
	case KindDeferred:
		chain = []Kind{KindDeferred}
	default:
		chain = []Kind{KindPriority, KindIdle, KindDeferred}
	}

	for _, k := range chain {
		switch k {
		case KindPriority:
			s := NewPriority(logger)
			logger.Debug("sched: selected tier", "tier", k)
			return s
		case KindIdle:
			cfg := opts.Idle
			cfg.Logger = logger
			s, err := NewIdle(opts.Activity, cfg)
			if err != nil {
				logger.Debug("sched: tier unavailable", "tier", k, "error", err)
				continue
			}
			logger.Debug("sched: selected tier", "tier", k)
			return s
		}
	}
	logger.Debug("sched: selected tier", "tier", KindDeferred)
	return NewDeferred(logger)
}
