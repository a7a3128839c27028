// Package recency turns the bounded navigation history into normalized
// per-destination weights that decay with age and list position.
//
// Per entry at position i with age dt:
//
//	recency    = exp(-dt / tau)
//	positional = 1 / (i+1)^exponent
//	weight     = recency * positional
//
// Weights for the same route accumulate, and the result is normalized to
// sum to 1.
package recency

import (
	"math"

	"github.com/runger/warmroute/internal/prefetch/history"
	"github.com/runger/warmroute/internal/prefetch/route"
)

const (
	// DefaultTauMs is the decay time constant (10 minutes).
	DefaultTauMs = 10 * 60 * 1000

	// DefaultPositionalExponent controls how fast older list positions fade.
	DefaultPositionalExponent = 1.2
)

// Options tunes the decay.
type Options struct {
	TauMs              int64
	PositionalExponent float64
}

// DefaultOptions returns the standard decay parameters.
func DefaultOptions() Options {
	return Options{
		TauMs:              DefaultTauMs,
		PositionalExponent: DefaultPositionalExponent,
	}
}

func (o Options) applyDefaults() Options {
	if o.TauMs <= 0 {
		o.TauMs = DefaultTauMs
	}
	if o.PositionalExponent <= 0 {
		o.PositionalExponent = DefaultPositionalExponent
	}
	return o
}

// Weights computes the normalized recency map for entries, excluding
// current. It returns an empty map when there is no usable signal.
func Weights(entries []history.Entry, current route.Route, nowMs int64, opts Options) map[route.Route]float64 {
	opts = opts.applyDefaults()
	tau := float64(opts.TauMs)

	raw := make(map[route.Route]float64)
	var total float64
	for i, e := range entries {
		if e.Route == current {
			continue
		}
		age := float64(nowMs - e.TsMs)
		if age < 0 {
			age = 0
		}
		w := math.Exp(-age/tau) / math.Pow(float64(i+1), opts.PositionalExponent)
		if w <= 0 {
			continue
		}
		raw[e.Route] += w
		total += w
	}

	if total <= 0 {
		return map[route.Route]float64{}
	}
	for r, w := range raw {
		raw[r] = w / total
	}
	return raw
}
