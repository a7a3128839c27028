package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRect_Intersects(t *testing.T) {
	t.Parallel()

	viewport := Rect{Width: 1000, Height: 800}
	tests := []struct {
		name string
		r    Rect
		want bool
	}{
		{"inside", Rect{X: 10, Y: 10, Width: 100, Height: 20}, true},
		{"partially above", Rect{X: 10, Y: -10, Width: 100, Height: 20}, true},
		{"below fold", Rect{X: 10, Y: 900, Width: 100, Height: 20}, false},
		{"touching edge", Rect{X: 1000, Y: 10, Width: 50, Height: 20}, false},
		{"zero size", Rect{X: 10, Y: 10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Intersects(viewport))
		})
	}
}

func TestEventType_Classification(t *testing.T) {
	t.Parallel()

	for _, e := range []EventType{EventPointerMove, EventPointerDown, EventTouchStart, EventKeyDown} {
		assert.True(t, e.Engages(), e)
		assert.False(t, e.Intent(), e)
	}
	for _, e := range []EventType{EventPointerEnter, EventFocusIn} {
		assert.False(t, e.Engages(), e)
		assert.True(t, e.Intent(), e)
	}
}

func TestPointerType_Fine(t *testing.T) {
	t.Parallel()

	assert.True(t, PointerMouse.Fine())
	assert.True(t, PointerPen.Fine())
	assert.False(t, PointerTouch.Fine())
	assert.False(t, PointerType("").Fine())
}

func TestStaticLayout(t *testing.T) {
	t.Parallel()

	l := Layout{Viewport: Rect{Width: 1, Height: 1}, Elements: []Element{{ID: "a", Route: "/a"}}}
	var src VisibilitySource = StaticLayout(l)
	assert.Equal(t, l, src.Layout())
}

func TestNetwork_SetNotifiesSubscribers(t *testing.T) {
	t.Parallel()

	var n Network
	_, ok := n.Connection()
	assert.False(t, ok)

	var got []ConnectionInfo
	unsub := n.Subscribe(func(info ConnectionInfo) { got = append(got, info) })
	assert.Equal(t, 1, n.Subscribers())

	n.Set(ConnectionInfo{EffectiveType: "4g"})
	info, ok := n.Connection()
	assert.True(t, ok)
	assert.Equal(t, "4g", info.EffectiveType)

	unsub()
	n.Set(ConnectionInfo{EffectiveType: "2g"})
	assert.Equal(t, []ConnectionInfo{{EffectiveType: "4g"}}, got)
	assert.Zero(t, n.Subscribers())
}
