package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/warmroute/internal/log"
	"github.com/runger/warmroute/internal/prefetch/dispatch"
	"github.com/runger/warmroute/internal/prefetch/history"
	"github.com/runger/warmroute/internal/prefetch/host"
	"github.com/runger/warmroute/internal/prefetch/kv"
	"github.com/runger/warmroute/internal/prefetch/route"
	"github.com/runger/warmroute/internal/prefetch/sched"
)

var (
	viewport  = host.Rect{Width: 1280, Height: 800}
	onScreen  = host.Rect{X: 10, Y: 10, Width: 80, Height: 20}
	offScreen = host.Rect{X: 10, Y: 2000, Width: 80, Height: 20}
)

type loadCounter struct {
	calls map[route.Route]int
	mu    sync.Mutex
}

func (c *loadCounter) loaders(routes ...route.Route) dispatch.Loaders {
	c.calls = make(map[route.Route]int)
	l := make(dispatch.Loaders, len(routes))
	for _, r := range routes {
		r := r
		l[r] = func(context.Context) error {
			c.mu.Lock()
			c.calls[r]++
			c.mu.Unlock()
			return nil
		}
	}
	return l
}

func (c *loadCounter) count(r route.Route) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[r]
}

func (c *loadCounter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func visibleLayout(routes ...route.Route) host.StaticLayout {
	l := host.StaticLayout{Viewport: viewport}
	for _, r := range routes {
		l.Elements = append(l.Elements, host.Element{ID: "nav" + string(r), Route: r, Rect: onScreen, Prefetchable: true})
	}
	return l
}

type fixture struct {
	engine *Engine
	sched  *sched.Manual
	loads  *loadCounter
	store  kv.Store
}

func newFixture(t *testing.T, deps Deps, cfg Config) *fixture {
	t.Helper()
	f := &fixture{sched: sched.NewManual(), loads: &loadCounter{}}
	if deps.Loaders == nil {
		deps.Loaders = f.loads.loaders("/", "/pricing", "/docs", "/about")
	}
	if deps.Store == nil {
		deps.Store = kv.NewMemory()
	}
	if deps.Clock == nil {
		at := time.Unix(1_700_000_000, 0)
		deps.Clock = func() time.Time { return at }
	}
	deps.Scheduler = f.sched
	f.store = deps.Store
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}

	e, err := New(context.Background(), deps, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		e.Close()
		f.sched.Close()
	})
	f.engine = e
	return f
}

func (f *fixture) engage() {
	f.engine.HandleEvent(host.Event{Type: host.EventPointerMove, PointerType: host.PointerMouse})
}

func (f *fixture) settle() {
	f.sched.Drain(10)
	f.engine.WaitLoads()
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ReinforceWeight = -1
	_, err := New(context.Background(), Deps{Scheduler: sched.NewManual()}, cfg)
	assert.Error(t, err)
}

func TestNew_SelectsSchedulerWhenNoneGiven(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Logger = log.Discard()
	cfg.Scheduler.Strategy = sched.KindDeferred
	e, err := New(context.Background(), Deps{}, cfg)
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, sched.KindDeferred, e.Scheduler().Kind())
	assert.NotEmpty(t, e.ID())
}

func TestNavigate_UpdatesModelSynchronously(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Deps{}, DefaultConfig())
	f.engine.Navigate("/")
	f.engine.Navigate("/pricing")
	f.engine.Navigate("/")
	f.engine.Navigate("/")

	m := f.engine.Model()
	assert.Equal(t, int64(3), m.Visits["/"])
	assert.Equal(t, int64(1), m.Visits["/pricing"])
	assert.InDelta(t, 1.0, m.Transitions["/"]["/pricing"], 1e-9)
	assert.InDelta(t, 1.0, m.Transitions["/pricing"]["/"], 1e-9)
	assert.NotContains(t, m.Transitions["/"], route.Route("/"))
	assert.Equal(t, route.Route("/"), f.engine.Current())

	// One persistence pass and one prediction pass, each debounced to a
	// single pending task.
	assert.Equal(t, 2, f.sched.Pending())
	assert.Contains(t, f.sched.Delays(), DefaultPersistDebounce)
}

func TestTick_WithoutEngagementLoadsNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Deps{Visibility: visibleLayout("/pricing", "/docs", "/about")}, DefaultConfig())
	for i := 0; i < 5; i++ {
		f.engine.Navigate("/")
		f.engine.Navigate("/pricing")
		f.settle()
	}

	assert.Zero(t, f.loads.total())
	assert.Empty(t, f.engine.Dispatched())
	assert.Equal(t, f.engine.Counters().Ticks.Load(), f.engine.Counters().TicksGated.Load())
}

func TestTick_ConstrainedNetworkLoadsNothing(t *testing.T) {
	t.Parallel()

	for _, info := range []host.ConnectionInfo{
		{EffectiveType: "2g"},
		{EffectiveType: "slow-2g"},
		{EffectiveType: "4g", SaveData: true},
	} {
		network := &host.Network{}
		network.Set(info)
		f := newFixture(t, Deps{Network: network, Visibility: visibleLayout("/pricing", "/docs", "/about")}, DefaultConfig())
		f.engage()
		for i := 0; i < 10; i++ {
			f.engine.Navigate("/")
			f.engine.Navigate("/pricing")
		}
		f.engine.Navigate("/")
		f.settle()

		assert.Zero(t, f.loads.total(), info)
	}
}

func TestTick_NetworkChangeReopensGate(t *testing.T) {
	t.Parallel()

	network := &host.Network{}
	network.Set(host.ConnectionInfo{EffectiveType: "2g"})
	f := newFixture(t, Deps{Network: network, Visibility: visibleLayout("/pricing")}, DefaultConfig())
	f.engage()
	f.engine.Navigate("/")
	f.settle()
	assert.Zero(t, f.loads.total())

	network.Set(host.ConnectionInfo{EffectiveType: "4g"})
	f.engine.Navigate("/docs")
	f.engine.Navigate("/")
	f.settle()
	assert.Equal(t, 1, f.loads.count("/pricing"))
}

func TestTick_DispatchesRankedVisibleCandidates(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxPrefetchPerCycle = 1
	f := newFixture(t, Deps{Visibility: visibleLayout("/pricing", "/docs", "/about")}, cfg)
	f.engage()

	f.engine.Navigate("/")
	f.engine.Navigate("/pricing")
	f.engine.Navigate("/")
	f.settle()

	assert.Equal(t, []route.Route{"/pricing"}, f.engine.Dispatched())
	assert.Equal(t, 1, f.loads.count("/pricing"))
}

func TestTick_CapsDispatchesPerCycle(t *testing.T) {
	t.Parallel()

	loads := &loadCounter{}
	f := newFixture(t, Deps{
		Loaders:    loads.loaders("/", "/a", "/b", "/c", "/d", "/e"),
		Visibility: visibleLayout("/a", "/b", "/c", "/d", "/e"),
	}, DefaultConfig())
	f.loads = loads
	f.engage()

	f.engine.Navigate("/")
	f.settle()
	assert.Len(t, f.engine.Dispatched(), DefaultMaxPrefetchPerCycle)

	f.engine.Navigate("/a")
	f.settle()
	assert.Len(t, f.engine.Dispatched(), 5)
	assert.Equal(t, 5, loads.total())
}

func TestTick_VisibilityFiltersCandidates(t *testing.T) {
	t.Parallel()

	layout := visibleLayout("/docs")
	layout.Elements = append(layout.Elements,
		host.Element{ID: "footer-pricing", Route: "/pricing", Rect: offScreen},
		host.Element{ID: "footer-about", Route: "/about", Rect: offScreen},
	)
	f := newFixture(t, Deps{Visibility: layout}, DefaultConfig())
	f.engage()

	f.engine.Navigate("/")
	f.engine.Navigate("/pricing")
	f.engine.Navigate("/")
	f.settle()

	assert.Equal(t, []route.Route{"/docs"}, f.engine.Dispatched())
}

func TestTick_NoTrackedElementsLoadsNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Deps{}, DefaultConfig())
	f.engage()
	f.engine.Navigate("/")
	f.engine.Navigate("/pricing")
	f.engine.Navigate("/")
	f.settle()

	assert.Zero(t, f.loads.total())
	assert.Equal(t, int64(1), f.engine.Counters().TicksGated.Load())
}

func TestTick_NeverDispatchesTwice(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Deps{Visibility: visibleLayout("/pricing", "/docs", "/about", "/")}, DefaultConfig())
	f.engage()
	for i := 0; i < 20; i++ {
		f.engine.Navigate("/")
		f.settle()
		f.engine.Navigate("/pricing")
		f.settle()
		f.engine.Apply(context.Background(), Tick{})
		f.engine.WaitLoads()
	}

	for _, r := range []route.Route{"/", "/pricing", "/docs", "/about"} {
		assert.LessOrEqual(t, f.loads.count(r), 1, r)
	}
	assert.Positive(t, f.engine.Counters().DispatchSkipped.Load())
}

func TestIntent_DispatchesWithinOneTickBypassingVisibility(t *testing.T) {
	t.Parallel()

	layout := host.StaticLayout{
		Viewport: viewport,
		Elements: []host.Element{
			{ID: "nav-docs", Route: "/docs", Rect: onScreen},
			{ID: "footer-pricing", Route: "/pricing", Rect: offScreen, Prefetchable: true},
		},
	}
	f := newFixture(t, Deps{Visibility: layout}, DefaultConfig())
	f.engine.Navigate("/")
	f.sched.Drain(10)

	fired := f.engine.HandleEvent(host.Event{Type: host.EventPointerEnter, PointerType: host.PointerMouse, Target: "footer-pricing"})
	require.True(t, fired)
	assert.True(t, f.engine.Capabilities().Engaged())
	assert.Contains(t, f.engine.Dispatched(), route.Route("/pricing"))
	assert.Zero(t, f.loads.count("/pricing"))

	f.sched.Tick()
	f.engine.WaitLoads()
	assert.Equal(t, 1, f.loads.count("/pricing"))
	assert.Equal(t, int64(1), f.engine.Counters().DispatchedIntent.Load())
}

func TestIntent_ReinforcesModel(t *testing.T) {
	t.Parallel()

	layout := host.StaticLayout{
		Viewport: viewport,
		Elements: []host.Element{
			{ID: "hero-pricing", Route: "/pricing", Rect: onScreen, Prefetchable: true},
			{ID: "footer-pricing", Route: "/pricing", Rect: offScreen, Prefetchable: true},
		},
	}
	f := newFixture(t, Deps{Visibility: layout}, DefaultConfig())
	f.engine.Navigate("/")

	f.engine.HandleEvent(host.Event{Type: host.EventFocusIn, Target: "hero-pricing"})
	f.engine.HandleEvent(host.Event{Type: host.EventFocusIn, Target: "hero-pricing"})
	f.engine.HandleEvent(host.Event{Type: host.EventPointerEnter, Target: "footer-pricing"})
	f.settle()

	m := f.engine.Model()
	assert.InDelta(t, 2*DefaultReinforceWeight, m.Transitions["/"]["/pricing"], 1e-9)
	assert.InDelta(t, 2*DefaultInteractionBoost, f.engine.Interactions()["/pricing"], 1e-9)
	assert.Equal(t, 1, f.loads.count("/pricing"))
}

func TestIntent_UsesOverriddenConstants(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ReinforceWeight = 0.5
	cfg.InteractionBoost = 2
	f := newFixture(t, Deps{}, cfg)
	f.engine.Navigate("/")
	f.engine.Intent("/docs")

	assert.InDelta(t, 0.5, f.engine.Model().Transitions["/"]["/docs"], 1e-9)
	assert.InDelta(t, 2.0, f.engine.Interactions()["/docs"], 1e-9)
}

func TestNew_ZeroConfigUsesDefaultWeights(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Deps{}, Config{})
	f.engine.Navigate("/")
	f.engine.Navigate("/pricing")
	f.engine.Intent("/docs")

	m := f.engine.Model()
	assert.InDelta(t, DefaultNavigationWeight, m.Transitions["/"]["/pricing"], 1e-9)
	assert.InDelta(t, DefaultReinforceWeight, m.Transitions["/pricing"]["/docs"], 1e-9)
	assert.InDelta(t, DefaultInteractionBoost, f.engine.Interactions()["/docs"], 1e-9)
}

func TestIntent_UnknownRouteIsReinforcedButNotLoaded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Deps{}, DefaultConfig())
	f.engine.Navigate("/")
	f.engine.Intent("/careers")
	f.settle()

	assert.Empty(t, f.engine.Dispatched())
	assert.InDelta(t, DefaultInteractionBoost, f.engine.Interactions()["/careers"], 1e-9)
}

func TestApply_ConcurrentWritesAllLand(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Deps{}, DefaultConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				f.engine.Apply(ctx, RecordVisit{Route: "/"})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				f.engine.Apply(ctx, Reinforce{From: "/", To: "/docs", Weight: 0.5, Boost: 1})
			}
		}()
	}
	wg.Wait()

	m := f.engine.Model()
	assert.Equal(t, int64(800), m.Visits["/"])
	assert.InDelta(t, 400.0, m.Transitions["/"]["/docs"], 1e-9)
	assert.InDelta(t, 800.0, f.engine.Interactions()["/docs"], 1e-9)
}

func TestPersistence_RoundTrip(t *testing.T) {
	t.Parallel()

	store := kv.NewMemory()
	f := newFixture(t, Deps{Store: store}, DefaultConfig())
	f.engine.Navigate("/")
	f.engine.Navigate("/pricing")
	f.engine.Navigate("/docs")
	f.engine.Navigate("/")
	f.settle()
	want := f.engine.Model()

	g := newFixture(t, Deps{Store: store}, DefaultConfig())
	got := g.engine.Model()
	assert.Equal(t, want.Transitions, got.Transitions)
	assert.Equal(t, want.Visits, got.Visits)
}

func TestClose_WritesPendingPersist(t *testing.T) {
	t.Parallel()

	store := kv.NewMemory()
	f := newFixture(t, Deps{Store: store}, DefaultConfig())
	f.engine.Navigate("/")
	f.engine.Navigate("/docs")
	f.engine.Close()

	assert.Zero(t, f.sched.Tick())
	assert.Zero(t, f.loads.total())

	g := newFixture(t, Deps{Store: store}, DefaultConfig())
	assert.Equal(t, int64(1), g.engine.Model().Visits["/docs"])
	assert.Len(t, g.engine.history.Entries(), 2)

	f.engine.Navigate("/about")
	assert.Equal(t, route.Route("/docs"), f.engine.Current())
}

func TestHistory_ExternalReaderIsNotWritten(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	external := history.New(history.Options{})
	external.Record("/pricing", now.Add(-time.Minute).UnixMilli())

	f := newFixture(t, Deps{
		History:    external,
		Visibility: visibleLayout("/pricing", "/docs"),
		Clock:      func() time.Time { return now },
	}, DefaultConfig())
	f.engage()
	f.engine.Navigate("/")
	f.settle()

	assert.Equal(t, 1, external.Len())
	assert.Equal(t, route.Route("/pricing"), f.engine.Dispatched()[0])
}

func TestClose_UnsubscribesNetworkAndStopsDispatch(t *testing.T) {
	t.Parallel()

	net := &host.Network{}
	f := newFixture(t, Deps{Network: net, Visibility: visibleLayout("/pricing")}, DefaultConfig())
	require.Equal(t, 1, net.Subscribers())

	f.engine.Close()
	f.engine.Close()
	assert.Zero(t, net.Subscribers())

	f.engage()
	f.engine.Navigate("/")
	f.sched.Drain(10)
	f.engine.WaitLoads()
	assert.Zero(t, f.loads.total())
}
