// Package host defines the values and capabilities the browsing host hands
// to the prefetch engine: raw interaction events, annotated navigational
// elements and their layout, and the optional connection-quality signal.
package host

import "github.com/runger/warmroute/internal/prefetch/route"

// EventType names a raw host event.
type EventType string

const (
	EventPointerMove  EventType = "pointermove"
	EventPointerDown  EventType = "pointerdown"
	EventTouchStart   EventType = "touchstart"
	EventKeyDown      EventType = "keydown"
	EventPointerEnter EventType = "pointerenter"
	EventFocusIn      EventType = "focusin"
)

// Engages reports whether the event proves the visitor is engaged.
func (t EventType) Engages() bool {
	switch t {
	case EventPointerMove, EventPointerDown, EventTouchStart, EventKeyDown:
		return true
	}
	return false
}

// Intent reports whether the event expresses intent toward an element.
func (t EventType) Intent() bool {
	return t == EventPointerEnter || t == EventFocusIn
}

// PointerType mirrors the pointer kinds a host can report.
type PointerType string

const (
	PointerMouse PointerType = "mouse"
	PointerPen   PointerType = "pen"
	PointerTouch PointerType = "touch"
)

// Fine reports whether the pointer is a precise input device.
func (p PointerType) Fine() bool {
	return p == PointerMouse || p == PointerPen
}

// Event is a raw interaction event consumed read-only by the engine.
type Event struct {
	Type        EventType   `json:"type"`
	PointerType PointerType `json:"pointer_type,omitempty"`
	// Target is the element ID the event was dispatched to, if any.
	Target string `json:"target,omitempty"`
}

// Rect is an axis-aligned bounding box in viewport coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

// Intersects reports whether r and o overlap with a non-zero area.
func (r Rect) Intersects(o Rect) bool {
	if r.Width <= 0 || r.Height <= 0 || o.Width <= 0 || o.Height <= 0 {
		return false
	}
	return r.X < o.X+o.Width && o.X < r.X+r.Width &&
		r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

// Element is a navigational element that represents a route.
type Element struct {
	ID    string      `json:"id"`
	Route route.Route `json:"route"`
	Rect  Rect        `json:"rect"`
	// Prefetchable marks elements whose hover or focus triggers an eager
	// prefetch.
	Prefetchable bool `json:"prefetchable,omitempty"`
}

// Layout is a snapshot of the viewport and tracked elements.
type Layout struct {
	Elements []Element `json:"elements"`
	Viewport Rect      `json:"viewport"`
}

// VisibilitySource supplies the current layout.
type VisibilitySource interface {
	Layout() Layout
}

// StaticLayout is a VisibilitySource that always returns the same layout.
type StaticLayout Layout

// Layout implements VisibilitySource.
func (s StaticLayout) Layout() Layout { return Layout(s) }

// ConnectionInfo describes the current network quality.
type ConnectionInfo struct {
	// EffectiveType is the bandwidth class, e.g. "slow-2g", "2g", "3g", "4g".
	EffectiveType string `json:"effective_type"`
	SaveData      bool   `json:"save_data"`
}

// NetworkSignal is the optional connection-quality capability.
type NetworkSignal interface {
	// Connection returns the current info. ok is false when unknown.
	Connection() (info ConnectionInfo, ok bool)
}

// NetworkNotifier is implemented by signals that can report changes.
type NetworkNotifier interface {
	// Subscribe registers fn and returns a function that unregisters it.
	Subscribe(fn func(ConnectionInfo)) (unsubscribe func())
}
