package dispatch

import (
	"sync"

	"github.com/runger/warmroute/internal/prefetch/route"
)

// Set is the Session Prefetch Set: routes already dispatched during this
// process lifetime. It only grows.
type Set struct {
	seen  map[route.Route]struct{}
	order []route.Route
	mu    sync.RWMutex
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{seen: make(map[route.Route]struct{})}
}

// Insert adds r and reports whether it was new.
func (s *Set) Insert(r route.Route) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[r]; ok {
		return false
	}
	s.seen[r] = struct{}{}
	s.order = append(s.order, r)
	return true
}

// Has reports whether r was dispatched.
func (s *Set) Has(r route.Route) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[r]
	return ok
}

// Len returns the number of dispatched routes.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Routes returns the dispatched routes in insertion order.
func (s *Set) Routes() []route.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]route.Route, len(s.order))
	copy(out, s.order)
	return out
}
