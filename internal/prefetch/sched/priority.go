package sched

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

type queued struct {
	ctx    context.Context
	task   Task
	cancel context.CancelFunc
	timer  *time.Timer
	seq    uint64
	prio   Priority
	index  int
}

type taskQueue []*queued

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].prio != q[j].prio {
		return q[i].prio < q[j].prio
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	it := x.(*queued)
	it.index = len(*q)
	*q = append(*q, it)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*q = old[:n-1]
	return it
}

// PriorityScheduler is the priority-aware tier: one worker goroutine drains
// a heap ordered by priority then submission order.
type PriorityScheduler struct {
	base   context.Context
	stop   context.CancelFunc
	cond   *sync.Cond
	done   chan struct{}
	runner *runner
	queue  taskQueue
	timers map[*queued]struct{}
	seq    uint64
	mu     sync.Mutex
	closed bool
}

// NewPriority creates and starts a priority scheduler.
func NewPriority(logger *slog.Logger) *PriorityScheduler {
	base, stop := context.WithCancel(context.Background())
	p := &PriorityScheduler{
		base:   base,
		stop:   stop,
		done:   make(chan struct{}),
		runner: &runner{logger: resolveLogger(logger), kind: KindPriority},
		timers: make(map[*queued]struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.loop()
	return p
}

// Kind implements Scheduler.
func (p *PriorityScheduler) Kind() Kind { return KindPriority }

// Schedule implements Scheduler.
func (p *PriorityScheduler) Schedule(task Task, opts Options) CancelFunc {
	ctx, cancel := context.WithCancel(p.base)
	it := &queued{ctx: ctx, task: task, cancel: cancel, prio: opts.Priority, index: -1}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		cancel()
		return func() {}
	}
	p.seq++
	it.seq = p.seq

	if opts.Delay > 0 {
		p.timers[it] = struct{}{}
		it.timer = time.AfterFunc(opts.Delay, func() { p.enqueueDelayed(it) })
	} else {
		heap.Push(&p.queue, it)
		p.cond.Signal()
	}

	return func() { p.cancel(it) }
}

func (p *PriorityScheduler) enqueueDelayed(it *queued) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.timers[it]; !ok || p.closed {
		return
	}
	delete(p.timers, it)
	heap.Push(&p.queue, it)
	p.cond.Signal()
}

func (p *PriorityScheduler) cancel(it *queued) {
	it.cancel()
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.timers[it]; ok {
		it.timer.Stop()
		delete(p.timers, it)
	}
	if it.index >= 0 {
		heap.Remove(&p.queue, it.index)
	}
}

func (p *PriorityScheduler) loop() {
	defer close(p.done)
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		it := heap.Pop(&p.queue).(*queued)
		p.mu.Unlock()

		p.runner.run(it.ctx, it.task)
		it.cancel()
	}
}

// Pending returns the number of queued and delayed tasks.
func (p *PriorityScheduler) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) + len(p.timers)
}

// Close implements Scheduler. It waits for a running task to return.
func (p *PriorityScheduler) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for it := range p.timers {
		it.timer.Stop()
	}
	p.timers = nil
	for _, it := range p.queue {
		it.index = -1
		it.cancel()
	}
	p.queue = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	p.stop()
	<-p.done
}
