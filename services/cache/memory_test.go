package cachesvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
)

type payload struct {
	Count int    `json:"count"`
	Name  string `json:"name"`
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	origNow := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = origNow })

	cache := NewMemoryCache()
	require.NoError(t, cache.Set(ctx, "dashboard:student-count:all", payload{Count: 3, Name: "all"}, time.Minute))
	require.NoError(t, cache.Set(ctx, "dashboard:attendance-today:all", payload{Count: 1}, 0))
	require.NoError(t, cache.Set(ctx, "other:key", payload{Count: 9}, time.Minute))

	t.Run("hit", func(t *testing.T) {
		var got payload
		found, err := cache.Get(ctx, "dashboard:student-count:all", &got)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, payload{Count: 3, Name: "all"}, got)
	})

	t.Run("miss", func(t *testing.T) {
		var got payload
		found, err := cache.Get(ctx, "dashboard:unknown", &got)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("expired", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		var got payload
		found, err := cache.Get(ctx, "other:key", &got)
		require.NoError(t, err)
		assert.False(t, found)

		// no ttl never expires
		found, err = cache.Get(ctx, "dashboard:attendance-today:all", &got)
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("delete prefix", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "keep:me", payload{Count: 1}, 0))
		require.NoError(t, cache.DeletePrefix(ctx, "dashboard:"))

		var got payload
		found, _ := cache.Get(ctx, "dashboard:attendance-today:all", &got)
		assert.False(t, found)
		found, _ = cache.Get(ctx, "keep:me", &got)
		assert.True(t, found)
	})
}
