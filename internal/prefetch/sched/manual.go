package sched

import (
	"context"
	"sync"
	"time"
)

// Manual is a deterministic tier: tasks only run when Tick is called.
// Delays are recorded but not waited on. It is safe for concurrent use.
type Manual struct {
	base    context.Context
	stop    context.CancelFunc
	runner  *runner
	pending []*manualTask
	mu      sync.Mutex
	closed  bool
}

type manualTask struct {
	ctx    context.Context
	task   Task
	cancel context.CancelFunc
	opts   Options
}

// NewManual creates a manual tier.
func NewManual() *Manual {
	base, stop := context.WithCancel(context.Background())
	return &Manual{
		base:   base,
		stop:   stop,
		runner: &runner{logger: resolveLogger(nil), kind: KindManual},
	}
}

// Kind implements Scheduler.
func (m *Manual) Kind() Kind { return KindManual }

// Schedule implements Scheduler.
func (m *Manual) Schedule(task Task, opts Options) CancelFunc {
	ctx, cancel := context.WithCancel(m.base)
	t := &manualTask{ctx: ctx, task: task, cancel: cancel, opts: opts}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		cancel()
		return func() {}
	}
	m.pending = append(m.pending, t)
	return CancelFunc(cancel)
}

// Tick runs every task pending at the time of the call, in priority then
// submission order, and returns how many ran. Tasks scheduled while
// ticking wait for the next Tick.
func (m *Manual) Tick() int {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()

	ordered := make([]*manualTask, 0, len(batch))
	for p := PriorityUserBlocking; p <= PriorityBackground; p++ {
		for _, t := range batch {
			if t.opts.Priority == p {
				ordered = append(ordered, t)
			}
		}
	}
	for _, t := range batch {
		if t.opts.Priority < PriorityUserBlocking || t.opts.Priority > PriorityBackground {
			ordered = append(ordered, t)
		}
	}

	ran := 0
	for _, t := range ordered {
		if t.ctx.Err() != nil {
			continue
		}
		m.runner.run(t.ctx, t.task)
		t.cancel()
		ran++
	}
	return ran
}

// Drain ticks until nothing is pending or maxTicks is reached, returning
// the total number of tasks run.
func (m *Manual) Drain(maxTicks int) int {
	total := 0
	for i := 0; i < maxTicks && m.Pending() > 0; i++ {
		total += m.Tick()
	}
	return total
}

// Pending returns the number of live tasks waiting for a Tick.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.pending {
		if t.ctx.Err() == nil {
			n++
		}
	}
	return n
}

// Delays returns the delays of live pending tasks, in submission order.
func (m *Manual) Delays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Duration
	for _, t := range m.pending {
		if t.ctx.Err() == nil {
			out = append(out, t.opts.Delay)
		}
	}
	return out
}

// Close implements Scheduler.
func (m *Manual) Close() {
	m.mu.Lock()
	m.closed = true
	m.pending = nil
	m.mu.Unlock()
	m.stop()
}
