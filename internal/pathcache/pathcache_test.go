package pathcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgcache "terminalsim/pkg/cache"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	backend := pkgcache.NewMemoryCache(pkgcache.DefaultOptions())
	t.Cleanup(func() { _ = backend.Close() })
	return NewWithBackend(backend, time.Minute)
}

func TestCache_SetThenGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		TotalCost float64 `json:"total_cost"`
	}
	c.Set(ctx, "rotterdam->hamburg:truck", payload{TotalCost: 42.5})

	raw, ok := c.Get(ctx, "rotterdam->hamburg:truck")
	require.True(t, ok)
	require.JSONEq(t, `{"total_cost":42.5}`, string(raw))
}

func TestCache_GetMiss(t *testing.T) {
	c := newTestCache(t)
	_, ok := c.Get(context.Background(), "nonexistent")
	require.False(t, ok)
}

func TestCache_InvalidateAll(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "key-one", map[string]int{"a": 1})
	c.Set(ctx, "key-two", map[string]int{"b": 2})

	_, ok := c.Get(ctx, "key-one")
	require.True(t, ok)

	c.InvalidateAll(ctx)

	_, ok = c.Get(ctx, "key-one")
	require.False(t, ok)
	_, ok = c.Get(ctx, "key-two")
	require.False(t, ok)
}
