package sched

import (
	"context"
	"sync"
)

// Stream is a logical stream of background work with at most one pending
// task: scheduling a new task cancels its predecessor.
type Stream struct {
	sched  Scheduler
	cancel CancelFunc
	opts   Options
	gen    uint64
	mu     sync.Mutex
}

// NewStream binds a stream to s with fixed options.
func NewStream(s Scheduler, opts Options) *Stream {
	return &Stream{sched: s, opts: opts}
}

// Schedule cancels any pending task and schedules task in its place.
func (st *Stream) Schedule(task Task) CancelFunc {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.cancel != nil {
		st.cancel()
	}
	st.gen++
	gen := st.gen
	st.cancel = st.sched.Schedule(func(ctx context.Context) {
		st.mu.Lock()
		if st.gen == gen {
			st.cancel = nil
		}
		st.mu.Unlock()
		task(ctx)
	}, st.opts)
	return st.Cancel
}

// Cancel cancels the pending task, if any.
func (st *Stream) Cancel() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
}

// Pending reports whether a task is waiting to run.
func (st *Stream) Pending() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cancel != nil
}

// Group tracks one-off tasks so they can all be canceled at tear-down.
type Group struct {
	sched   Scheduler
	pending map[uint64]CancelFunc
	next    uint64
	mu      sync.Mutex
}

// NewGroup creates a group on s.
func NewGroup(s Scheduler) *Group {
	return &Group{sched: s, pending: make(map[uint64]CancelFunc)}
}

// Schedule schedules task and tracks its cancel function until it runs.
func (g *Group) Schedule(task Task, opts Options) CancelFunc {
	g.mu.Lock()
	id := g.next
	g.next++
	// Reserve the slot first so a task that runs immediately can forget it.
	g.pending[id] = nil
	g.mu.Unlock()

	cancel := g.sched.Schedule(func(ctx context.Context) {
		g.forget(id)
		task(ctx)
	}, opts)

	g.mu.Lock()
	if _, ok := g.pending[id]; ok {
		g.pending[id] = cancel
	}
	g.mu.Unlock()

	return func() {
		cancel()
		g.forget(id)
	}
}

func (g *Group) forget(id uint64) {
	g.mu.Lock()
	delete(g.pending, id)
	g.mu.Unlock()
}

// Len returns the number of tracked tasks.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// CancelAll cancels every tracked task.
func (g *Group) CancelAll() {
	g.mu.Lock()
	cancels := make([]CancelFunc, 0, len(g.pending))
	for id, c := range g.pending {
		if c != nil {
			cancels = append(cancels, c)
		}
		delete(g.pending, id)
	}
	g.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}
