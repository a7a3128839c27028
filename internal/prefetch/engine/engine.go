// Package engine wires the route model, ranking, gates, scheduler, and
// dispatcher into one prefetch engine per host page.
//
// Lifecycle: New loads the persisted model and history, Navigate and
// HandleEvent feed it, Close cancels everything still pending.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/runger/warmroute/internal/metrics"
	"github.com/runger/warmroute/internal/prefetch/dispatch"
	"github.com/runger/warmroute/internal/prefetch/gate"
	"github.com/runger/warmroute/internal/prefetch/history"
	"github.com/runger/warmroute/internal/prefetch/host"
	"github.com/runger/warmroute/internal/prefetch/interact"
	"github.com/runger/warmroute/internal/prefetch/kv"
	"github.com/runger/warmroute/internal/prefetch/modelstore"
	"github.com/runger/warmroute/internal/prefetch/rank"
	"github.com/runger/warmroute/internal/prefetch/recency"
	"github.com/runger/warmroute/internal/prefetch/route"
	"github.com/runger/warmroute/internal/prefetch/sched"
)

const (
	// DefaultNavigationWeight is the transition weight of a completed
	// navigation.
	DefaultNavigationWeight = 1.0

	// DefaultReinforceWeight is the partial transition weight applied on
	// hover or focus intent.
	DefaultReinforceWeight = 0.35

	// DefaultInteractionBoost is added to a route's interaction counter on
	// hover or focus intent.
	DefaultInteractionBoost = 1.5

	// DefaultMaxPrefetchPerCycle caps background dispatches per pass.
	DefaultMaxPrefetchPerCycle = 3

	// DefaultPersistDebounce delays model writes after a navigation.
	DefaultPersistDebounce = 250 * time.Millisecond
)

// Deps are the host capabilities injected at construction.
type Deps struct {
	// Loaders maps routes to loaders. Routes without one are never
	// candidates.
	Loaders dispatch.Loaders

	// Store persists the model and, when History is nil, the owned history.
	// Nil keeps everything in memory.
	Store kv.Store

	// History is the host's navigation history. When nil the engine keeps
	// its own bounded log and records every Navigate into it.
	History history.Reader

	// Visibility supplies the layout of annotated elements. Nil means no
	// elements are tracked, so background prefetch never runs.
	Visibility host.VisibilitySource

	// Network is the optional connection-quality signal.
	Network host.NetworkSignal

	// Scheduler runs background work. When nil the engine selects one from
	// Config.Scheduler and closes it on Close.
	Scheduler sched.Scheduler

	// Activity enables the idle tier when the engine selects a scheduler.
	// Listener events touch it.
	Activity *sched.Activity

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Config tunes the engine.
type Config struct {
	Logger *slog.Logger

	Rank    rank.Config
	Recency recency.Options
	Gates   gate.CapabilityConfig

	// Zero weights select the Default* constants.
	NavigationWeight float64
	ReinforceWeight  float64
	InteractionBoost float64

	MaxPrefetchPerCycle int
	PersistDebounce     time.Duration

	ModelKey   string
	HistoryKey string
	HistoryCap int

	Scheduler sched.SelectOptions

	// MaxPerSecond and Burst budget background dispatch.
	MaxPerSecond float64
	Burst        int

	Counters *metrics.Counters

	// Registerer enables Prometheus collectors when set.
	Registerer prometheus.Registerer
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{
		Rank:                rank.DefaultConfig(),
		Recency:             recency.DefaultOptions(),
		NavigationWeight:    DefaultNavigationWeight,
		ReinforceWeight:     DefaultReinforceWeight,
		InteractionBoost:    DefaultInteractionBoost,
		MaxPrefetchPerCycle: DefaultMaxPrefetchPerCycle,
		PersistDebounce:     DefaultPersistDebounce,
	}
}

func (c Config) validate() error {
	var errs []error
	if c.NavigationWeight < 0 {
		errs = append(errs, fmt.Errorf("navigation weight must be >= 0, got %v", c.NavigationWeight))
	}
	if c.ReinforceWeight < 0 {
		errs = append(errs, fmt.Errorf("reinforce weight must be >= 0, got %v", c.ReinforceWeight))
	}
	if c.InteractionBoost < 0 {
		errs = append(errs, fmt.Errorf("interaction boost must be >= 0, got %v", c.InteractionBoost))
	}
	if c.MaxPrefetchPerCycle < 0 {
		errs = append(errs, fmt.Errorf("max prefetch per cycle must be >= 0, got %d", c.MaxPrefetchPerCycle))
	}
	return errors.Join(errs...)
}

func (c Config) applyDefaults() Config {
	if c.Rank == (rank.Config{}) {
		c.Rank = rank.DefaultConfig()
	}
	if c.NavigationWeight == 0 {
		c.NavigationWeight = DefaultNavigationWeight
	}
	if c.ReinforceWeight == 0 {
		c.ReinforceWeight = DefaultReinforceWeight
	}
	if c.InteractionBoost == 0 {
		c.InteractionBoost = DefaultInteractionBoost
	}
	if c.MaxPrefetchPerCycle == 0 {
		c.MaxPrefetchPerCycle = DefaultMaxPrefetchPerCycle
	}
	if c.PersistDebounce < 0 {
		c.PersistDebounce = 0
	}
	return c
}

// Engine is a prefetch engine instance. It is safe for concurrent use.
type Engine struct {
	id       string
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
	counters *metrics.Counters
	prom     *metrics.Prom

	store        *modelstore.Store
	history      history.Reader
	ownedHistory *history.Log
	visibility   host.VisibilitySource

	caps       *gate.Capabilities
	dispatcher *dispatch.Dispatcher
	listener   *interact.Listener

	scheduler      sched.Scheduler
	ownsScheduler  bool
	persistStream  *sched.Stream
	prefetchStream *sched.Stream
	group          *sched.Group

	mu           sync.Mutex
	model        *route.Model
	interactions map[route.Route]float64
	current      route.Route
	closed       bool
}

// New creates an engine and loads its persisted state.
func New(ctx context.Context, deps Deps, cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	cfg = cfg.applyDefaults()

	id := uuid.NewString()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", id)

	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	counters := cfg.Counters
	if counters == nil {
		counters = &metrics.Counters{}
	}
	var prom *metrics.Prom
	if cfg.Registerer != nil {
		prom = metrics.NewProm(cfg.Registerer)
	}

	e := &Engine{
		id:           id,
		logger:       logger,
		cfg:          cfg,
		now:          now,
		counters:     counters,
		prom:         prom,
		visibility:   deps.Visibility,
		interactions: make(map[route.Route]float64),
	}

	e.store = modelstore.New(deps.Store, modelstore.Options{
		Logger:   logger,
		Key:      cfg.ModelKey,
		Counters: counters,
	})
	e.model = e.store.Load(ctx)

	if deps.History != nil {
		e.history = deps.History
	} else {
		e.ownedHistory = history.New(history.Options{
			Logger: logger,
			Store:  deps.Store,
			Key:    cfg.HistoryKey,
			Cap:    cfg.HistoryCap,
		})
		e.ownedHistory.Load(ctx)
		e.history = e.ownedHistory
	}

	gates := cfg.Gates
	gates.Logger = logger
	e.caps = gate.NewCapabilities(deps.Network, gates)

	e.dispatcher = dispatch.New(dispatch.Config{
		Logger:       logger,
		Loaders:      deps.Loaders,
		MaxPerSecond: cfg.MaxPerSecond,
		Burst:        cfg.Burst,
		Now:          now,
		Counters:     counters,
		Prom:         prom,
	})

	listenerCfg := interact.Config{Logger: logger, Elements: deps.Visibility, Now: now}
	if deps.Activity != nil {
		listenerCfg.Activity = deps.Activity
	}
	e.listener = interact.New(e.caps, e, listenerCfg)

	e.scheduler = deps.Scheduler
	if e.scheduler == nil {
		opts := cfg.Scheduler
		opts.Logger = logger
		if deps.Activity != nil {
			opts.Activity = deps.Activity
		}
		e.scheduler = sched.Select(opts)
		e.ownsScheduler = true
	}
	e.persistStream = sched.NewStream(e.scheduler, sched.Options{
		Priority: sched.PriorityBackground,
		Delay:    cfg.PersistDebounce,
	})
	e.prefetchStream = sched.NewStream(e.scheduler, sched.Options{Priority: sched.PriorityBackground})
	e.group = sched.NewGroup(e.scheduler)

	logger.Debug("engine started",
		"scheduler", e.scheduler.Kind(),
		"known_routes", len(deps.Loaders),
		"history_len", len(e.history.Entries()),
	)
	return e, nil
}

// ID returns the engine's session ID.
func (e *Engine) ID() string { return e.id }

// Apply runs cmd through the engine's single mutation entry point.
func (e *Engine) Apply(ctx context.Context, cmd Command) {
	cmd.apply(ctx, e)
}

// Navigate records a completed navigation to r. The model update happens
// now; the persistence write and the prediction pass are scheduled.
func (e *Engine) Navigate(r route.Route) {
	if r == "" {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	prev := e.current
	e.current = r
	e.mu.Unlock()

	ctx := context.Background()
	e.counters.Navigations.Add(1)
	if e.ownedHistory != nil {
		e.ownedHistory.Record(r, e.now().UnixMilli())
	}
	e.Apply(ctx, RecordVisit{Route: r})
	if prev != r {
		e.Apply(ctx, RecordTransition{From: prev, To: r, Weight: e.cfg.NavigationWeight})
	}

	e.schedulePersist()
	e.prefetchStream.Schedule(func(ctx context.Context) {
		e.Apply(ctx, Tick{})
	})
}

// HandleEvent feeds a raw host event to the interaction listener and
// reports whether it fired intent.
func (e *Engine) HandleEvent(ev host.Event) bool {
	if e.isClosed() {
		return false
	}
	return e.listener.Handle(ev)
}

// Intent handles hover or focus intent toward r. It reinforces the model
// and, the first time r is seen, claims it and schedules its load without
// consulting visibility, gates, or the dispatch budget.
func (e *Engine) Intent(r route.Route) {
	if e.isClosed() {
		return
	}
	e.mu.Lock()
	from := e.current
	e.mu.Unlock()

	e.counters.Interactions.Add(1)
	e.Apply(context.Background(), Reinforce{
		From:   from,
		To:     r,
		Weight: e.cfg.ReinforceWeight,
		Boost:  e.cfg.InteractionBoost,
	})
	e.schedulePersist()

	if e.dispatcher.Claim(r, dispatch.SourceInteraction) != dispatch.Claimed {
		return
	}
	e.logger.Debug("engine: eager prefetch", "route", r, "from", from)
	e.group.Schedule(func(context.Context) {
		e.dispatcher.Start(r)
	}, sched.Options{Priority: sched.PriorityUserVisible})
}

func (e *Engine) schedulePersist() {
	e.persistStream.Schedule(func(ctx context.Context) {
		e.persist(ctx)
	})
}

func (e *Engine) persist(ctx context.Context) {
	e.mu.Lock()
	snapshot := e.model.Clone()
	e.mu.Unlock()

	e.store.Persist(ctx, snapshot)
	if e.ownedHistory != nil {
		e.ownedHistory.Save(ctx)
	}
}

// tick is one background prediction pass.
func (e *Engine) tick(ctx context.Context) {
	start := time.Now()
	e.counters.Ticks.Add(1)

	if ok, reason := e.caps.Check(); !ok {
		e.gated(reason)
		return
	}

	e.mu.Lock()
	current := e.current
	in := rank.Inputs{
		Transitions:  e.model.Normalize(current),
		Interactions: copyWeights(e.interactions),
		Visits:       copyVisits(e.model.Visits),
		Current:      current,
	}
	e.mu.Unlock()

	in.History = recency.Weights(e.history.Entries(), current, e.now().UnixMilli(), e.cfg.Recency)
	in.Known = e.dispatcher.KnownRoutes()

	res := rank.Score(in, e.cfg.Rank)
	if res.Fallback {
		e.counters.Fallbacks.Add(1)
	}

	var layout host.Layout
	if e.visibility != nil {
		layout = e.visibility.Layout()
	}
	candidates, ok := gate.FilterVisible(res.Candidates, layout)
	if !ok {
		e.gated(gate.ReasonVisibility)
		return
	}
	e.counters.VisibilityFiltered.Add(int64(len(res.Candidates) - len(candidates)))

	dispatched := 0
	for _, c := range candidates {
		if dispatched >= e.cfg.MaxPrefetchPerCycle || ctx.Err() != nil {
			break
		}
		switch e.dispatcher.Dispatch(c.Route, dispatch.SourcePrediction) {
		case dispatch.Claimed:
			dispatched++
		case dispatch.Throttled, dispatch.Stopped:
			e.logger.Debug("engine: pass cut short", "route", c.Route)
			e.observe(start, len(res.Candidates))
			return
		}
	}

	e.logger.Debug("engine: pass complete",
		"current", current,
		"candidates", len(res.Candidates),
		"visible", len(candidates),
		"dispatched", dispatched,
		"fallback", res.Fallback,
	)
	e.observe(start, len(res.Candidates))
}

func (e *Engine) gated(reason gate.Reason) {
	e.counters.TicksGated.Add(1)
	e.prom.RecordGated(string(reason))
	e.logger.Debug("engine: pass gated", "reason", reason)
}

func (e *Engine) observe(start time.Time, candidates int) {
	e.prom.ObserveTick(time.Since(start).Seconds(), candidates)
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Current returns the route of the last navigation.
func (e *Engine) Current() route.Route {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Model returns a copy of the in-memory model.
func (e *Engine) Model() *route.Model {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.Clone()
}

// Interactions returns a copy of the interaction boost counters.
func (e *Engine) Interactions() map[route.Route]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyWeights(e.interactions)
}

// Dispatched returns the Session Prefetch Set in dispatch order.
func (e *Engine) Dispatched() []route.Route {
	return e.dispatcher.Session().Routes()
}

// Capabilities exposes the capability gates.
func (e *Engine) Capabilities() *gate.Capabilities { return e.caps }

// Counters returns the engine's counters.
func (e *Engine) Counters() *metrics.Counters { return e.counters }

// Scheduler returns the scheduler in use.
func (e *Engine) Scheduler() sched.Scheduler { return e.scheduler }

// WaitLoads blocks until every started loader has returned.
func (e *Engine) WaitLoads() { e.dispatcher.Wait() }

// Flush writes the model and owned history now.
func (e *Engine) Flush(ctx context.Context) {
	e.persistStream.Cancel()
	e.persist(ctx)
}

// Close cancels all pending work and releases the engine's resources. A
// write still waiting on its debounce is performed before returning.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	writePending := e.persistStream.Pending()
	e.prefetchStream.Cancel()
	e.persistStream.Cancel()
	e.group.CancelAll()
	e.caps.Close()
	if e.ownsScheduler {
		e.scheduler.Close()
	}
	e.dispatcher.Close()

	if writePending {
		e.persist(context.Background())
	}
	e.logger.Debug("engine stopped", "dispatched", e.dispatcher.Session().Len())
}

func copyWeights(m map[route.Route]float64) map[route.Route]float64 {
	out := make(map[route.Route]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyVisits(m map[route.Route]int64) map[route.Route]int64 {
	out := make(map[route.Route]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
