package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCache_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("j", "w")
	now = now.Add(2 * time.Minute)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 0, c.Size())
}

func TestReferences_CachesOnlyPositiveHits(t *testing.T) {
	calls := map[int64]int{}
	existing := map[int64]bool{1: true}
	load := func(_ context.Context, id int64) (bool, error) {
		calls[id]++
		return existing[id], nil
	}
	refs := NewReferences(16, time.Minute, load, load)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := refs.CategoryExists(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, calls[1])

	ok, err := refs.CategoryExists(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	existing[2] = true
	ok, err = refs.CategoryExists(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok, "a miss must not be cached")
	assert.Equal(t, 2, calls[2])
}

func TestReferences_KindsDoNotCollide(t *testing.T) {
	refs := NewReferences(16, time.Minute,
		func(context.Context, int64) (bool, error) { return true, nil },
		func(context.Context, int64) (bool, error) { return false, nil },
	)
	ctx := context.Background()

	ok, err := refs.CategoryExists(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = refs.ProjectExists(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)
}
