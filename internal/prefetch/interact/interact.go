// Package interact turns raw host events into engagement and intent
// signals.
package interact

import (
	"log/slog"
	"sync"
	"time"

	"github.com/runger/warmroute/internal/prefetch/gate"
	"github.com/runger/warmroute/internal/prefetch/host"
	"github.com/runger/warmroute/internal/prefetch/route"
)

// Sink receives intent toward a prefetchable element's route.
type Sink interface {
	Intent(r route.Route)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(r route.Route)

// Intent implements Sink.
func (f SinkFunc) Intent(r route.Route) { f(r) }

// Toucher records interactive activity for the idle scheduler tier.
type Toucher interface {
	Touch(now time.Time)
}

// Config configures a Listener.
type Config struct {
	Logger *slog.Logger

	// Elements resolves event targets to annotated elements.
	Elements host.VisibilitySource

	// Activity, if set, is touched on every event.
	Activity Toucher

	Now func() time.Time
}

// Listener observes host events. Intent fires at most once per element.
type Listener struct {
	caps     *gate.Capabilities
	sink     Sink
	elements host.VisibilitySource
	activity Toucher
	now      func() time.Time
	logger   *slog.Logger
	fired    map[string]struct{}
	mu       sync.Mutex
}

// New creates a listener that flips caps and forwards intent to sink.
func New(caps *gate.Capabilities, sink Sink, cfg Config) *Listener {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Listener{
		caps:     caps,
		sink:     sink,
		elements: cfg.Elements,
		activity: cfg.Activity,
		now:      now,
		logger:   logger,
		fired:    make(map[string]struct{}),
	}
}

// Handle consumes one event and reports whether it fired intent.
func (l *Listener) Handle(ev host.Event) bool {
	if l.activity != nil {
		l.activity.Touch(l.now())
	}
	if ev.PointerType.Fine() {
		l.caps.MarkFinePointer()
	}
	if ev.Type.Engages() {
		if l.caps.MarkEngaged() {
			l.logger.Debug("interact: engagement observed", "event", ev.Type)
		}
		return false
	}
	if !ev.Type.Intent() {
		return false
	}

	el, ok := l.lookup(ev.Target)
	if !ok {
		return false
	}

	l.mu.Lock()
	if _, seen := l.fired[el.ID]; seen {
		l.mu.Unlock()
		return false
	}
	l.fired[el.ID] = struct{}{}
	l.mu.Unlock()

	l.caps.MarkEngaged()
	l.logger.Debug("interact: intent", "element", el.ID, "route", el.Route, "event", ev.Type)
	l.sink.Intent(el.Route)
	return true
}

func (l *Listener) lookup(id string) (host.Element, bool) {
	if id == "" || l.elements == nil {
		return host.Element{}, false
	}
	for _, el := range l.elements.Layout().Elements {
		if el.ID == id && el.Prefetchable && el.Route != "" {
			return el, true
		}
	}
	return host.Element{}, false
}

// Fired returns how many elements have fired intent.
func (l *Listener) Fired() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fired)
}
