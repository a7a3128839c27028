// Package metrics provides observability for the prefetch engine: atomic
// counters for snapshots and replay reports, and Prometheus collectors for
// hosts that export metrics.
package metrics

import (
	"sync/atomic"
)

// Counters holds atomic observability counters for the prefetch engine.
// All fields use sync/atomic for lock-free concurrent access.
type Counters struct {
	Navigations        atomic.Int64 // navigation events recorded
	Interactions       atomic.Int64 // intent signals reinforced
	Ticks              atomic.Int64 // prediction cycles run
	TicksGated         atomic.Int64 // cycles stopped by a capability gate
	Fallbacks          atomic.Int64 // cycles that used the fallback ranking
	Dispatched         atomic.Int64 // background prefetches started
	DispatchedIntent   atomic.Int64 // interaction prefetches started
	DispatchSkipped    atomic.Int64 // candidates already in the session set
	DispatchThrottled  atomic.Int64 // background candidates denied by the budget
	LoadErrors         atomic.Int64 // loaders that failed or panicked
	PersistWrites      atomic.Int64 // model and history writes
	PersistErrors      atomic.Int64 // failed model and history writes
	StorageReadErrors  atomic.Int64 // unreadable or corrupt stored state
	VisibilityFiltered atomic.Int64 // candidates dropped as not visible
}

// Global is the process-wide metrics singleton.
var Global = &Counters{}

// Snapshot returns a point-in-time copy of all counters as a string-keyed map.
// The snapshot is consistent per-field but not across fields.
func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"navigations":         c.Navigations.Load(),
		"interactions":        c.Interactions.Load(),
		"ticks":               c.Ticks.Load(),
		"ticks_gated":         c.TicksGated.Load(),
		"fallbacks":           c.Fallbacks.Load(),
		"dispatched":          c.Dispatched.Load(),
		"dispatched_intent":   c.DispatchedIntent.Load(),
		"dispatch_skipped":    c.DispatchSkipped.Load(),
		"dispatch_throttled":  c.DispatchThrottled.Load(),
		"load_errors":         c.LoadErrors.Load(),
		"persist_writes":      c.PersistWrites.Load(),
		"persist_errors":      c.PersistErrors.Load(),
		"storage_read_errors": c.StorageReadErrors.Load(),
		"visibility_filtered": c.VisibilityFiltered.Load(),
	}
}

// Reset zeroes all counters.
func (c *Counters) Reset() {
	c.Navigations.Store(0)
	c.Interactions.Store(0)
	c.Ticks.Store(0)
	c.TicksGated.Store(0)
	c.Fallbacks.Store(0)
	c.Dispatched.Store(0)
	c.DispatchedIntent.Store(0)
	c.DispatchSkipped.Store(0)
	c.DispatchThrottled.Store(0)
	c.LoadErrors.Store(0)
	c.PersistWrites.Store(0)
	c.PersistErrors.Store(0)
	c.StorageReadErrors.Store(0)
	c.VisibilityFiltered.Store(0)
}

// TotalDispatched returns background plus interaction prefetches.
func (c *Counters) TotalDispatched() int64 {
	return c.Dispatched.Load() + c.DispatchedIntent.Load()
}

// FallbackRate returns the fraction of ungated cycles that used the
// fallback ranking. Returns 0 if no cycles ran.
func (c *Counters) FallbackRate() float64 {
	ran := c.Ticks.Load() - c.TicksGated.Load()
	if ran <= 0 {
		return 0
	}
	return float64(c.Fallbacks.Load()) / float64(ran)
}
