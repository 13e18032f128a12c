package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/redisclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCache mirrors the version guard of the redis scripts
type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]redisclient.CachedItem
	versions    map[string]int64
	invalidated map[string]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries:     make(map[string]redisclient.CachedItem),
		versions:    make(map[string]int64),
		invalidated: make(map[string]int64),
	}
}

func (c *fakeCache) GetItem(_ context.Context, id string) (*redisclient.CachedItem, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, false, nil
	}
	return &e, true, nil
}

func (c *fakeCache) SetItem(_ context.Context, item models.InventoryItem, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.versions[item.ID]; ok && v > item.Version {
		return false, nil
	}
	c.versions[item.ID] = item.Version
	c.entries[item.ID] = redisclient.CachedItem{Item: item, CachedAt: time.Now()}
	return true, nil
}

func (c *fakeCache) InvalidateItem(_ context.Context, id string, version int64, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.versions[id]; ok && v > version {
		return false, nil
	}
	c.versions[id] = version
	delete(c.entries, id)
	c.invalidated[id] = version
	return true, nil
}

func TestCachedStore_ReadThrough(t *testing.T) {
	inner := NewMemoryStore()
	cache := newFakeCache()
	s := NewCachedStore(inner, cache, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, inner.CreateItem(ctx, newTestItem("a", "SKU-A", 10)))

	item, err := s.LoadItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(10), item.CurrentStock)
	_, cached, _ := cache.GetItem(ctx, "a")
	assert.True(t, cached)

	// a write that bypasses the decorator is invisible until the entry is dropped
	raw, err := inner.LoadItem(ctx, "a")
	require.NoError(t, err)
	raw.CurrentStock = 4
	require.NoError(t, inner.SaveItem(ctx, raw, raw.Version))

	item, err = s.LoadItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(10), item.CurrentStock)
}

func TestCachedStore_MaxAge(t *testing.T) {
	inner := NewMemoryStore()
	cache := newFakeCache()
	s := NewCachedStore(inner, cache, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, inner.CreateItem(ctx, newTestItem("a", "SKU-A", 10)))
	stale := *newTestItem("a", "SKU-A", 99)
	cache.entries["a"] = redisclient.CachedItem{Item: stale, CachedAt: time.Now().Add(-2 * time.Minute)}

	item, err := s.LoadItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(10), item.CurrentStock)
}

func TestCachedStore_InvalidatesAfterCommit(t *testing.T) {
	inner := NewMemoryStore()
	cache := newFakeCache()
	s := NewCachedStore(inner, cache, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, s.CreateItem(ctx, newTestItem("a", "SKU-A", 10)))
	_, err := s.LoadItem(ctx, "a")
	require.NoError(t, err)

	before, err := inner.LoadItem(ctx, "a")
	require.NoError(t, err)
	p := ledger.NewProcessor(s, ledger.Options{})
	_, err = p.RemoveStock(ctx, "a", 3, "damaged")
	require.NoError(t, err)

	assert.Equal(t, before.Version+1, cache.invalidated["a"])
	item, err := s.LoadItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(7), item.CurrentStock)
}

func TestCachedStore_FailedTxKeepsCache(t *testing.T) {
	inner := NewMemoryStore()
	cache := newFakeCache()
	s := NewCachedStore(inner, cache, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, inner.CreateItem(ctx, newTestItem("a", "SKU-A", 2)))
	_, err := s.LoadItem(ctx, "a")
	require.NoError(t, err)

	p := ledger.NewProcessor(s, ledger.Options{})
	_, err = p.RemoveStock(ctx, "a", 5, "sale")
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	assert.Empty(t, cache.invalidated)
}

func TestCachedStore_StaleReaderCannotRepopulate(t *testing.T) {
	inner := NewMemoryStore()
	cache := newFakeCache()
	s := NewCachedStore(inner, cache, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, inner.CreateItem(ctx, newTestItem("a", "SKU-A", 10)))
	// a reader misses and loads the current version from the database
	stale, err := inner.LoadItem(ctx, "a")
	require.NoError(t, err)

	// a writer commits before the reader fills the cache
	p := ledger.NewProcessor(s, ledger.Options{})
	_, err = p.RemoveStock(ctx, "a", 3, "damaged")
	require.NoError(t, err)

	stored, err := cache.SetItem(ctx, *stale, time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)

	item, err := s.LoadItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(7), item.CurrentStock)
	cached, ok, err := cache.GetItem(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), cached.Item.CurrentStock)
}
