// Package replay runs recorded host-event traces through a fresh engine
// with a fixed clock and a manual scheduler, so the same trace always
// dispatches the same routes in the same order.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/runger/warmroute/internal/metrics"
	"github.com/runger/warmroute/internal/prefetch/dispatch"
	"github.com/runger/warmroute/internal/prefetch/engine"
	"github.com/runger/warmroute/internal/prefetch/host"
	"github.com/runger/warmroute/internal/prefetch/kv"
	"github.com/runger/warmroute/internal/prefetch/route"
	"github.com/runger/warmroute/internal/prefetch/sched"
)

// DefaultStartMs is the fixed clock's starting point.
const DefaultStartMs int64 = 1_700_000_000_000

// DefaultParallelism bounds concurrent file replays.
const DefaultParallelism = 4

// maxDrainTicks bounds how many scheduler ticks one tick step may take.
const maxDrainTicks = 64

// RunnerConfig configures the replay runner.
type RunnerConfig struct {
	Logger *slog.Logger

	// Engine is the engine configuration replays run under. Counters and
	// Registerer are replaced per replay. Default: engine.DefaultConfig().
	Engine *engine.Config

	// StartMs is the starting timestamp for the fixed clock.
	// Default: DefaultStartMs.
	StartMs int64

	// Store, if set, backs every replay. By default each replay gets a
	// fresh in-memory store. Replays sharing a Store run one at a time, in
	// input order, so each one starts from the model the previous one
	// persisted.
	Store kv.Store

	// Parallelism bounds RunFiles when Store is nil.
	// Default: DefaultParallelism.
	Parallelism int
}

// Mismatch is an expect step that did not hold.
type Mismatch struct {
	Expected []route.Route
	Got      []route.Route
	Line     int
}

// Result is the outcome of one replay.
type Result struct {
	Name       string
	SessionID  string
	Dispatched []route.Route
	Failed     []route.Route
	Counters   map[string]int64
	Mismatches []Mismatch
	Model      *route.Model
	Steps      int
}

// OK reports whether every expect step held.
func (r *Result) OK() bool { return len(r.Mismatches) == 0 }

// Runner replays traces.
type Runner struct {
	cfg RunnerConfig

	// shared serializes replays over cfg.Store.
	shared sync.Mutex
}

// NewRunner creates a runner with deterministic defaults.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.StartMs <= 0 {
		cfg.StartMs = DefaultStartMs
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.Engine == nil {
		def := engine.DefaultConfig()
		cfg.Engine = &def
	}
	return &Runner{cfg: cfg}
}

// layout is the mutable VisibilitySource a replay edits.
type layout struct {
	elements []host.Element
	mu       sync.RWMutex
}

func (l *layout) put(el host.Element) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.elements {
		if l.elements[i].ID == el.ID {
			l.elements[i] = el
			return
		}
	}
	l.elements = append(l.elements, el)
}

func (l *layout) Layout() host.Layout {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return host.Layout{Elements: slices.Clone(l.elements), Viewport: Viewport}
}

type runtime struct {
	engine  *engine.Engine
	sched   *sched.Manual
	layout  *layout
	network *host.Network
	failing map[route.Route]bool
	failed  []route.Route
	nowMs   int64
	mu      sync.Mutex
}

// Run replays steps. Loaders are declared by routes steps and succeed
// unless a fail step named their route.
func (r *Runner) Run(ctx context.Context, name string, steps []Step) (*Result, error) {
	if r.cfg.Store != nil {
		r.shared.Lock()
		defer r.shared.Unlock()
	}

	rt := &runtime{
		sched:   sched.NewManual(),
		layout:  &layout{},
		network: &host.Network{},
		failing: make(map[route.Route]bool),
		nowMs:   r.cfg.StartMs,
	}
	defer rt.sched.Close()

	loaders := dispatch.Loaders{}
	for _, st := range steps {
		switch st.Kind {
		case KindRoutes:
			for _, rr := range st.Routes {
				loaders[rr] = rt.loader(rr)
			}
		case KindFail:
			rt.failing[st.Route] = true
		}
	}

	store := r.cfg.Store
	if store == nil {
		store = kv.NewMemory()
		defer store.Close()
	}

	counters := &metrics.Counters{}
	ecfg := *r.cfg.Engine
	ecfg.Logger = r.cfg.Logger
	ecfg.Counters = counters
	ecfg.Registerer = nil

	eng, err := engine.New(ctx, engine.Deps{
		Loaders:    loaders,
		Store:      store,
		Visibility: rt.layout,
		Network:    rt.network,
		Scheduler:  rt.sched,
		Clock:      rt.now,
	}, ecfg)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", name, err)
	}
	rt.engine = eng

	res := &Result{Name: name, SessionID: eng.ID()}
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			eng.Close()
			return nil, err
		}
		if m, ok := rt.step(st); !ok {
			res.Mismatches = append(res.Mismatches, m)
		}
		res.Steps++
	}
	rt.drain()
	eng.Close()

	res.Dispatched = eng.Dispatched()
	res.Model = eng.Model()
	res.Counters = counters.Snapshot()
	rt.mu.Lock()
	res.Failed = slices.Clone(rt.failed)
	rt.mu.Unlock()

	r.cfg.Logger.Info("replay finished",
		"trace", name,
		"session", res.SessionID,
		"steps", res.Steps,
		"dispatched", len(res.Dispatched),
		"mismatches", len(res.Mismatches),
	)
	return res, nil
}

func (rt *runtime) step(st Step) (Mismatch, bool) {
	switch st.Kind {
	case KindElement:
		rt.layout.put(*st.Element)
	case KindNavigate:
		rt.engine.Navigate(st.Route)
	case KindEvent:
		rt.engine.HandleEvent(*st.Event)
	case KindNetwork:
		rt.network.Set(*st.Connection)
	case KindAdvance:
		rt.mu.Lock()
		rt.nowMs += st.AdvanceMs
		rt.mu.Unlock()
	case KindTick:
		rt.drain()
	case KindExpect:
		rt.drain()
		got := rt.engine.Dispatched()
		if !slices.Equal(got, st.Routes) {
			return Mismatch{Expected: st.Routes, Got: got, Line: st.Line}, false
		}
	}
	return Mismatch{}, true
}

func (rt *runtime) drain() {
	rt.sched.Drain(maxDrainTicks)
	rt.engine.WaitLoads()
}

func (rt *runtime) now() time.Time {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return time.UnixMilli(rt.nowMs)
}

var errInjected = errors.New("injected load failure")

func (rt *runtime) loader(r route.Route) dispatch.Loader {
	return func(context.Context) error {
		if !rt.failing[r] {
			return nil
		}
		rt.mu.Lock()
		rt.failed = append(rt.failed, r)
		rt.mu.Unlock()
		return errInjected
	}
}

// RunFile parses and replays one trace file.
func (r *Runner) RunFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	steps, err := Parse(f, DetectFormat(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return r.Run(ctx, path, steps)
}

// RunFiles replays several traces concurrently, each through its own
// engine. Results are in input order. The first failure cancels the rest.
// With a shared Store the traces run sequentially.
func (r *Runner) RunFiles(ctx context.Context, paths []string) ([]*Result, error) {
	results := make([]*Result, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if r.cfg.Store != nil {
		g.SetLimit(1)
	} else {
		g.SetLimit(r.cfg.Parallelism)
	}
	for i, p := range paths {
		g.Go(func() error {
			res, err := r.RunFile(ctx, p)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
