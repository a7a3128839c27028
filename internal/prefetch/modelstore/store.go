// Package modelstore persists and reloads the learned route model.
//
// Reads never fail: a missing, unreadable, or corrupt record yields an empty
// model and a warning. Writes never fail either; errors are logged and
// dropped because the model is a best-effort optimization aid.
package modelstore

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/runger/warmroute/internal/metrics"
	"github.com/runger/warmroute/internal/prefetch/kv"
	"github.com/runger/warmroute/internal/prefetch/route"
)

// DefaultKey is the key the model is stored under.
const DefaultKey = "warmroute:model"

// Options configures the store.
type Options struct {
	// Logger for diagnostics (optional, uses slog.Default if nil).
	Logger *slog.Logger

	// Key overrides DefaultKey.
	Key string

	// Counters receives read and write outcomes (optional).
	Counters *metrics.Counters
}

// Store reads and writes the persisted model through a kv.Store.
type Store struct {
	kv       kv.Store
	logger   *slog.Logger
	counters *metrics.Counters
	key      string
}

// New creates a model store. A nil backend behaves as an always-empty,
// write-discarding store.
func New(backend kv.Store, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	key := opts.Key
	if key == "" {
		key = DefaultKey
	}
	counters := opts.Counters
	if counters == nil {
		counters = &metrics.Counters{}
	}
	return &Store{kv: backend, logger: logger, counters: counters, key: key}
}

// Key returns the storage key in use.
func (s *Store) Key() string {
	return s.key
}

// Load reads the persisted model. It always returns a usable model.
func (s *Store) Load(ctx context.Context) *route.Model {
	if s.kv == nil {
		return route.NewModel()
	}

	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.counters.StorageReadErrors.Add(1)
		s.logger.Warn("modelstore: read failed, starting empty", "key", s.key, "error", err)
		return route.NewModel()
	}
	if !ok || raw == "" {
		return route.NewModel()
	}

	m, err := Decode([]byte(raw))
	if err != nil {
		s.counters.StorageReadErrors.Add(1)
		s.logger.Warn("modelstore: corrupt model, starting empty", "key", s.key, "error", err)
		return route.NewModel()
	}
	return m
}

// Persist serializes and writes m. Failures are logged, never returned.
func (s *Store) Persist(ctx context.Context, m *route.Model) {
	if s.kv == nil || m == nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		s.counters.PersistErrors.Add(1)
		s.logger.Warn("modelstore: serialize failed", "key", s.key, "error", err)
		return
	}
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		s.counters.PersistErrors.Add(1)
		s.logger.Warn("modelstore: write failed", "key", s.key, "error", err)
		return
	}
	s.counters.PersistWrites.Add(1)
}

// Reset overwrites the persisted model with an empty one.
func (s *Store) Reset(ctx context.Context) {
	s.Persist(ctx, route.NewModel())
}

// RecordVisit increments visits[r].
func RecordVisit(m *route.Model, r route.Route) {
	m.RecordVisit(r)
}

// RecordTransition adds weight to transitions[from][to].
func RecordTransition(m *route.Model, from, to route.Route, weight float64) {
	m.RecordTransition(from, to, weight)
}

// Decode parses a persisted model and drops entries that would violate the
// model invariants (negative weights, non-positive visit counts).
func Decode(data []byte) (*route.Model, error) {
	var raw route.Model
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	m := route.NewModel()
	for from, dests := range raw.Transitions {
		for to, w := range dests {
			m.RecordTransition(from, to, w)
		}
	}
	for r, n := range raw.Visits {
		if n > 0 {
			m.Visits[r] = n
		}
	}
	return m, nil
}
