// Package rank fuses transition probabilities, interaction boosts, recency
// weights, and visit decay into a single ranked candidate list.
//
// For every known route r other than the current one:
//
//	probability = normalizedTransitions[r]
//	visitDecay  = exp(-max(visits[r]-1, 0) * decayRate)
//	score(r)    = wP*probability + wI*interaction[r] + wH*history[r] + wV*visitDecay
//
// Routes with score > 0 are kept, sorted by descending score. When nothing
// scores, a fallback list is built from the strongest raw interaction and
// history signals so the engine is useful before any model is learned.
package rank

import (
	"math"
	"sort"

	"github.com/runger/warmroute/internal/prefetch/route"
)

// Default scoring weights.
const (
	DefaultWeightProbability = 0.55
	DefaultWeightInteraction = 0.20
	DefaultWeightHistory     = 0.20
	DefaultWeightVisitDecay  = 0.05

	// DefaultVisitDecayRate de-prioritizes routes the visitor already knows.
	DefaultVisitDecayRate = 0.05

	// DefaultFallbackWidth is how many routes each fallback source contributes.
	DefaultFallbackWidth = 2
)

// Weights are the linear coefficients of the score.
type Weights struct {
	Probability float64
	Interaction float64
	History     float64
	VisitDecay  float64
}

// DefaultWeights returns the standard coefficients.
func DefaultWeights() Weights {
	return Weights{
		Probability: DefaultWeightProbability,
		Interaction: DefaultWeightInteraction,
		History:     DefaultWeightHistory,
		VisitDecay:  DefaultWeightVisitDecay,
	}
}

// Config configures the ranker.
type Config struct {
	Weights        Weights
	VisitDecayRate float64
	FallbackWidth  int
}

// DefaultConfig returns the standard ranker configuration.
func DefaultConfig() Config {
	return Config{
		Weights:        DefaultWeights(),
		VisitDecayRate: DefaultVisitDecayRate,
		FallbackWidth:  DefaultFallbackWidth,
	}
}

// Inputs is everything one scoring pass reads. Maps may be nil.
type Inputs struct {
	// Transitions are the normalized probabilities out of Current.
	Transitions  map[route.Route]float64
	Interactions map[route.Route]float64
	History      map[route.Route]float64
	Visits       map[route.Route]int64

	Current route.Route

	// Known lists the routes that have a loader. Anything else is ignored.
	Known []route.Route
}

// Result is the outcome of a scoring pass.
type Result struct {
	Candidates []route.Candidate
	// Fallback is true when Candidates came from the cold-start path.
	Fallback bool
}

// Score ranks the known routes and falls back to raw signals when nothing
// scores above zero.
func Score(in Inputs, cfg Config) Result {
	ranked := Rank(in, cfg)
	if len(ranked) > 0 {
		return Result{Candidates: ranked}
	}
	return Result{Candidates: Fallback(in, cfg), Fallback: true}
}

// Rank scores every known route and returns those with a positive score in
// descending order. Ties are broken by route for determinism.
func Rank(in Inputs, cfg Config) []route.Candidate {
	w := cfg.Weights
	out := make([]route.Candidate, 0, len(in.Known))
	seen := make(map[route.Route]struct{}, len(in.Known))

	for _, r := range in.Known {
		if r == in.Current {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}

		s := w.Probability*in.Transitions[r] +
			w.Interaction*in.Interactions[r] +
			w.History*in.History[r] +
			w.VisitDecay*VisitDecay(in.Visits[r], cfg.VisitDecayRate)
		if s > 0 {
			out = append(out, route.Candidate{Route: r, Score: s})
		}
	}

	sortCandidates(out)
	return out
}

// VisitDecay returns exp(-max(visits-1, 0) * rate).
func VisitDecay(visits int64, rate float64) float64 {
	n := visits - 1
	if n < 0 {
		n = 0
	}
	return math.Exp(-float64(n) * rate)
}

// Fallback merges the top interaction counts with the top history weights,
// de-duplicated, keeping each route's first (interaction) value.
func Fallback(in Inputs, cfg Config) []route.Candidate {
	width := cfg.FallbackWidth
	if width <= 0 {
		width = DefaultFallbackWidth
	}

	known := make(map[route.Route]struct{}, len(in.Known))
	for _, r := range in.Known {
		known[r] = struct{}{}
	}

	var out []route.Candidate
	seen := make(map[route.Route]struct{})
	for _, src := range []map[route.Route]float64{in.Interactions, in.History} {
		for _, c := range top(src, width, known, in.Current) {
			if _, dup := seen[c.Route]; dup {
				continue
			}
			seen[c.Route] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// top returns the n highest positive entries of m restricted to known.
func top(m map[route.Route]float64, n int, known map[route.Route]struct{}, current route.Route) []route.Candidate {
	cs := make([]route.Candidate, 0, len(m))
	for r, v := range m {
		if v <= 0 || r == current {
			continue
		}
		if _, ok := known[r]; !ok {
			continue
		}
		cs = append(cs, route.Candidate{Route: r, Score: v})
	}
	sortCandidates(cs)
	if len(cs) > n {
		cs = cs[:n]
	}
	return cs
}

func sortCandidates(cs []route.Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return cs[i].Route < cs[j].Route
	})
}
