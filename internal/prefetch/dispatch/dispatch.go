// Package dispatch issues route loads through the host's Loader capability.
//
// Every dispatch is claimed in the Session Prefetch Set first. A claimed
// route is never loaded again in the same session, even when its loader
// fails.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/runger/warmroute/internal/metrics"
	"github.com/runger/warmroute/internal/prefetch/route"
)

// Loader fetches the code or resources for one route.
type Loader func(ctx context.Context) error

// Loaders maps routes to their loaders. Routes without an entry are never
// candidates.
type Loaders map[route.Route]Loader

// Routes returns the routes with a loader, sorted.
func (l Loaders) Routes() []route.Route {
	out := make([]route.Route, 0, len(l))
	for r := range l {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Source says which path asked for a dispatch.
type Source string

const (
	SourcePrediction  Source = metrics.SourcePrediction
	SourceInteraction Source = metrics.SourceInteraction
)

// Outcome is the result of a claim.
type Outcome int

const (
	Claimed Outcome = iota
	Unknown
	Duplicate
	Throttled
	Stopped
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Claimed:
		return "claimed"
	case Unknown:
		return "unknown"
	case Duplicate:
		return "duplicate"
	case Throttled:
		return "throttled"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Config configures a Dispatcher.
type Config struct {
	Logger *slog.Logger

	Loaders Loaders

	// MaxPerSecond budgets background dispatch. Zero means unlimited.
	MaxPerSecond float64

	// Burst is the budget's bucket size (default 1 when budgeted).
	Burst int

	// Now is the clock the budget reads (default time.Now).
	Now func() time.Time

	Counters *metrics.Counters
	Prom     *metrics.Prom
}

// Dispatcher claims routes in the session set and runs their loaders.
type Dispatcher struct {
	logger   *slog.Logger
	loaders  Loaders
	set      *Set
	limiter  *rate.Limiter
	now      func() time.Time
	counters *metrics.Counters
	prom     *metrics.Prom

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	// mu orders Start's wg.Add against Close.
	mu     sync.Mutex
	closed bool
}

// New creates a dispatcher with an empty session set.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	counters := cfg.Counters
	if counters == nil {
		counters = &metrics.Counters{}
	}
	loaders := cfg.Loaders
	if loaders == nil {
		loaders = Loaders{}
	}

	var limiter *rate.Limiter
	if cfg.MaxPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxPerSecond), burst)
	}

	base, stop := context.WithCancel(context.Background())
	return &Dispatcher{
		logger:   logger,
		loaders:  loaders,
		set:      NewSet(),
		limiter:  limiter,
		now:      now,
		counters: counters,
		prom:     cfg.Prom,
		base:     base,
		stop:     stop,
	}
}

// Known reports whether r has a loader.
func (d *Dispatcher) Known(r route.Route) bool {
	_, ok := d.loaders[r]
	return ok
}

// KnownRoutes returns the routes with a loader, sorted.
func (d *Dispatcher) KnownRoutes() []route.Route {
	return d.loaders.Routes()
}

// Dispatched reports whether r is in the session set.
func (d *Dispatcher) Dispatched(r route.Route) bool {
	return d.set.Has(r)
}

// Session returns the session set.
func (d *Dispatcher) Session() *Set {
	return d.set
}

// Claim decides whether r may be loaded now and, if so, inserts it into
// the session set. Prediction claims spend budget; interaction claims do
// not. A throttled route stays out of the set and may qualify again later.
func (d *Dispatcher) Claim(r route.Route, src Source) Outcome {
	if d.base.Err() != nil {
		return Stopped
	}
	if !d.Known(r) {
		return Unknown
	}
	if d.set.Has(r) {
		d.counters.DispatchSkipped.Add(1)
		return Duplicate
	}
	if src == SourcePrediction && d.limiter != nil && !d.limiter.AllowN(d.now(), 1) {
		d.counters.DispatchThrottled.Add(1)
		d.logger.Debug("dispatch: budget exhausted", "route", r)
		return Throttled
	}
	if !d.set.Insert(r) {
		d.counters.DispatchSkipped.Add(1)
		return Duplicate
	}

	switch src {
	case SourceInteraction:
		d.counters.DispatchedIntent.Add(1)
	default:
		d.counters.Dispatched.Add(1)
	}
	d.prom.RecordDispatch(string(src))
	return Claimed
}

// Dispatch claims r and starts its loader.
func (d *Dispatcher) Dispatch(r route.Route, src Source) Outcome {
	o := d.Claim(r, src)
	if o != Claimed {
		return o
	}
	d.logger.Debug("dispatch: prefetching", "route", r, "source", src)
	d.Start(r)
	return o
}

// Start runs the loader of a route already claimed. The loader runs
// asynchronously and its failure is only logged.
func (d *Dispatcher) Start(r route.Route) {
	load, ok := d.loaders[r]
	if !ok {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()
	go func() {
		defer d.wg.Done()
		d.load(r, load)
	}()
}

func (d *Dispatcher) load(r route.Route, load Loader) {
	defer func() {
		if p := recover(); p != nil {
			d.counters.LoadErrors.Add(1)
			d.prom.RecordLoadError("panic")
			d.logger.Warn("prefetch loader panicked", "route", r, "panic", p)
		}
	}()
	if err := load(d.base); err != nil {
		d.counters.LoadErrors.Add(1)
		d.prom.RecordLoadError("error")
		d.logger.Warn("prefetch failed", "route", r, "error", err)
	}
}

// Wait blocks until every started loader has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close cancels the loaders' context and waits for them. Later claims
// return Stopped and later starts run nothing.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.stop()
	d.mu.Unlock()
	d.wg.Wait()
}
