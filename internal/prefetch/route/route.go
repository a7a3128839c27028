// Package route defines the learned navigation model shared by every stage
// of the prefetch engine: routes, transition weights, visit counters, and the
// transient candidates produced by a scoring pass.
package route

// Route is an opaque identifier for a navigable location.
type Route string

// Model holds the learned navigation statistics.
//
// Transitions maps a source route to destination weights. Weights only ever
// grow and are never normalized in storage. Visits counts observed visits
// per route.
type Model struct {
	Transitions map[Route]map[Route]float64 `json:"transitions"`
	Visits      map[Route]int64             `json:"visits"`
}

// NewModel returns an empty model with both maps allocated.
func NewModel() *Model {
	return &Model{
		Transitions: make(map[Route]map[Route]float64),
		Visits:      make(map[Route]int64),
	}
}

// ensure allocates nil maps, which happens after decoding partial JSON.
func (m *Model) ensure() {
	if m.Transitions == nil {
		m.Transitions = make(map[Route]map[Route]float64)
	}
	if m.Visits == nil {
		m.Visits = make(map[Route]int64)
	}
}

// RecordVisit increments the visit counter for r.
func (m *Model) RecordVisit(r Route) {
	m.ensure()
	m.Visits[r]++
}

// RecordTransition adds weight to the from→to edge, creating the source
// entry as needed. Non-positive weights are ignored so that every stored
// weight stays non-negative.
func (m *Model) RecordTransition(from, to Route, weight float64) {
	if weight <= 0 {
		return
	}
	m.ensure()
	dests, ok := m.Transitions[from]
	if !ok {
		dests = make(map[Route]float64)
		m.Transitions[from] = dests
	}
	dests[to] += weight
}

// Destinations returns the raw destination weights for from. A route with no
// recorded transitions yields an empty, non-nil map.
func (m *Model) Destinations(from Route) map[Route]float64 {
	dests := m.Transitions[from]
	out := make(map[Route]float64, len(dests))
	for to, w := range dests {
		out[to] = w
	}
	return out
}

// Normalize returns the transition probabilities out of from. The result
// sums to 1 when from has at least one positive weight and is empty
// otherwise.
func (m *Model) Normalize(from Route) map[Route]float64 {
	dests := m.Transitions[from]
	var total float64
	for _, w := range dests {
		total += w
	}
	out := make(map[Route]float64, len(dests))
	if total <= 0 {
		return out
	}
	for to, w := range dests {
		out[to] = w / total
	}
	return out
}

// Clone returns a deep copy, used to snapshot the model before it is handed
// to a background persistence task.
func (m *Model) Clone() *Model {
	c := NewModel()
	for from, dests := range m.Transitions {
		cp := make(map[Route]float64, len(dests))
		for to, w := range dests {
			cp[to] = w
		}
		c.Transitions[from] = cp
	}
	for r, n := range m.Visits {
		c.Visits[r] = n
	}
	return c
}

// Candidate is a scored route for a single scoring pass. It is never
// persisted.
type Candidate struct {
	Route Route
	Score float64
}

// Routes extracts the routes of cs in order.
func Routes(cs []Candidate) []Route {
	out := make([]Route, len(cs))
	for i, c := range cs {
		out[i] = c.Route
	}
	return out
}
