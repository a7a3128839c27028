package recency

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runger/warmroute/internal/prefetch/history"
	"github.com/runger/warmroute/internal/prefetch/route"
)

const now = int64(10_000_000)

func TestWeights_RecencyDominates(t *testing.T) {
	t.Parallel()

	entries := []history.Entry{
		{Route: "/pricing", TsMs: now - 60_000},
		{Route: "/docs", TsMs: now - 600_000},
	}
	w := Weights(entries, "/", now, DefaultOptions())

	assert.Greater(t, w["/pricing"], w["/docs"])
	assert.InDelta(t, 1.0, w["/pricing"]+w["/docs"], 1e-9)
}

func TestWeights_ExactFormula(t *testing.T) {
	t.Parallel()

	entries := []history.Entry{
		{Route: "/a", TsMs: now},
		{Route: "/b", TsMs: now - DefaultTauMs},
	}
	w := Weights(entries, "/", now, DefaultOptions())

	wa := 1.0
	wb := math.Exp(-1) / math.Pow(2, 1.2)
	assert.InDelta(t, wa/(wa+wb), w["/a"], 1e-12)
	assert.InDelta(t, wb/(wa+wb), w["/b"], 1e-12)
}

func TestWeights_ExcludesCurrentAndAccumulates(t *testing.T) {
	t.Parallel()

	entries := []history.Entry{
		{Route: "/", TsMs: now},
		{Route: "/a", TsMs: now},
		{Route: "/b", TsMs: now},
		{Route: "/a", TsMs: now},
	}
	w := Weights(entries, "/", now, DefaultOptions())

	_, hasCurrent := w["/"]
	assert.False(t, hasCurrent)

	wa := 1/math.Pow(2, 1.2) + 1/math.Pow(4, 1.2)
	wb := 1 / math.Pow(3, 1.2)
	assert.InDelta(t, wa/(wa+wb), w["/a"], 1e-12)
}

func TestWeights_EmptyHistory(t *testing.T) {
	t.Parallel()

	w := Weights(nil, "/", now, DefaultOptions())
	assert.NotNil(t, w)
	assert.Empty(t, w)

	only := []history.Entry{{Route: "/", TsMs: now}}
	assert.Empty(t, Weights(only, "/", now, DefaultOptions()))
}

func TestWeights_AllZeroNoDivideByZero(t *testing.T) {
	t.Parallel()

	// Ages large enough for exp to underflow to zero.
	entries := []history.Entry{{Route: "/old", TsMs: 0}}
	w := Weights(entries, route.Route("/"), math.MaxInt64/2, DefaultOptions())
	assert.Empty(t, w)
}

func TestWeights_FutureTimestampClamped(t *testing.T) {
	t.Parallel()

	entries := []history.Entry{{Route: "/a", TsMs: now + 5000}}
	w := Weights(entries, "/", now, Options{})
	assert.InDelta(t, 1.0, w["/a"], 1e-12)
}
