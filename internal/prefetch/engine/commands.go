package engine

import (
	"context"

	"github.com/runger/warmroute/internal/prefetch/route"
)

// Command is a mutation or pass applied through Engine.Apply. Both the
// navigation path and the interaction path go through Apply, so writes to
// the shared model land one at a time in arrival order.
type Command interface {
	apply(ctx context.Context, e *Engine)
}

// RecordVisit increments the visit count of Route.
type RecordVisit struct {
	Route route.Route
}

func (c RecordVisit) apply(_ context.Context, e *Engine) {
	e.mu.Lock()
	e.model.RecordVisit(c.Route)
	e.mu.Unlock()
}

// RecordTransition adds Weight to the From→To transition.
type RecordTransition struct {
	From   route.Route
	To     route.Route
	Weight float64
}

func (c RecordTransition) apply(_ context.Context, e *Engine) {
	if c.From == "" || c.To == "" {
		return
	}
	e.mu.Lock()
	e.model.RecordTransition(c.From, c.To, c.Weight)
	e.mu.Unlock()
}

// Reinforce is the partial update applied on hover or focus intent: a
// weighted transition from the current route plus an interaction boost.
type Reinforce struct {
	From   route.Route
	To     route.Route
	Weight float64
	Boost  float64
}

func (c Reinforce) apply(_ context.Context, e *Engine) {
	if c.To == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if c.From != "" {
		e.model.RecordTransition(c.From, c.To, c.Weight)
	}
	if c.Boost > 0 {
		e.interactions[c.To] += c.Boost
	}
}

// Tick runs one background prediction pass.
type Tick struct{}

func (Tick) apply(ctx context.Context, e *Engine) {
	e.tick(ctx)
}
