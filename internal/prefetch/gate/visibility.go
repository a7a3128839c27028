// Package gate decides whether background prefetch may run and which
// candidates survive: a visibility filter driven by the current layout and
// three independent capability checks (engagement, pointer precision,
// network quality).
package gate

import (
	"github.com/runger/warmroute/internal/prefetch/host"
	"github.com/runger/warmroute/internal/prefetch/route"
)

// Reason labels why background work was gated out.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonEngagement Reason = "engagement"
	ReasonPointer    Reason = "pointer"
	ReasonNetwork    Reason = "network"
	ReasonVisibility Reason = "visibility"
)

// VisibleRoutes returns the routes that have at least one element inside the
// viewport. tracked is false when the layout has no elements at all.
func VisibleRoutes(l host.Layout) (visible map[route.Route]struct{}, tracked bool) {
	visible = make(map[route.Route]struct{})
	if len(l.Elements) == 0 {
		return visible, false
	}
	for _, el := range l.Elements {
		if el.Rect.Intersects(l.Viewport) {
			visible[el.Route] = struct{}{}
		}
	}
	return visible, true
}

// FilterVisible restricts ranked to routes with an on-screen element. When no
// element is on screen the ranked list is used unfiltered. ok is false
// when no elements are tracked, in which case nothing may be prefetched.
func FilterVisible(ranked []route.Candidate, l host.Layout) (out []route.Candidate, ok bool) {
	visible, tracked := VisibleRoutes(l)
	if !tracked {
		return nil, false
	}
	if len(visible) == 0 {
		return ranked, true
	}

	out = make([]route.Candidate, 0, len(ranked))
	for _, c := range ranked {
		if _, on := visible[c.Route]; on {
			out = append(out, c)
		}
	}
	return out, true
}
