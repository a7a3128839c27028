package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/warmroute/internal/prefetch/kv"
	"github.com/runger/warmroute/internal/prefetch/route"
)

func TestRecord_NewestFirstAndCapped(t *testing.T) {
	t.Parallel()

	l := New(Options{Cap: 3})
	for i := 0; i < 5; i++ {
		l.Record(route.Route(fmt.Sprintf("/p%d", i)), int64(i))
	}

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, route.Route("/p4"), entries[0].Route)
	assert.Equal(t, route.Route("/p3"), entries[1].Route)
	assert.Equal(t, route.Route("/p2"), entries[2].Route)
	assert.Equal(t, 3, l.Len())
}

func TestDefaultCap(t *testing.T) {
	t.Parallel()

	l := New(Options{})
	for i := 0; i < 25; i++ {
		l.Record("/x", int64(i))
	}
	assert.Equal(t, DefaultCap, l.Len())
	assert.Equal(t, int64(24), l.Entries()[0].TsMs)
}

func TestEntries_ReturnsCopy(t *testing.T) {
	t.Parallel()

	l := New(Options{})
	l.Record("/a", 1)
	e := l.Entries()
	e[0].Route = "/mutated"
	assert.Equal(t, route.Route("/a"), l.Entries()[0].Route)
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := kv.NewMemory()

	l := New(Options{Store: store})
	l.Record("/a", 100)
	l.Record("/b", 200)
	l.Save(ctx)

	reloaded := New(Options{Store: store})
	reloaded.Load(ctx)
	assert.Equal(t, l.Entries(), reloaded.Entries())
}

func TestLoad_TrimsToCap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := kv.NewMemory()
	require.NoError(t, store.Set(ctx, DefaultKey, `[{"route":"/a","ts":3},{"route":"/b","ts":2},{"route":"/c","ts":1}]`))

	l := New(Options{Store: store, Cap: 2})
	l.Load(ctx)
	assert.Equal(t, 2, l.Len())
}

func TestLoad_CorruptLeavesEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := kv.NewMemory()
	require.NoError(t, store.Set(ctx, DefaultKey, `nope`))

	l := New(Options{Store: store})
	l.Load(ctx)
	assert.Zero(t, l.Len())
}
