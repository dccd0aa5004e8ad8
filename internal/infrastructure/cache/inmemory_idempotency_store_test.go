package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	t.Run("first mark wins", func(t *testing.T) {
		fresh, err := store.MarkProcessed(ctx, "evt-1", time.Hour)
		require.NoError(t, err)
		assert.True(t, fresh)

		fresh, err = store.MarkProcessed(ctx, "evt-1", time.Hour)
		require.NoError(t, err)
		assert.False(t, fresh)

		seen, err := store.IsProcessed(ctx, "evt-1")
		require.NoError(t, err)
		assert.True(t, seen)
	})

	t.Run("unknown event", func(t *testing.T) {
		seen, err := store.IsProcessed(ctx, "evt-unknown")
		require.NoError(t, err)
		assert.False(t, seen)
	})

	t.Run("expired event can be marked again", func(t *testing.T) {
		now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		store.seen.now = func() time.Time { return now }

		fresh, _ := store.MarkProcessed(ctx, "evt-2", time.Minute)
		require.True(t, fresh)

		now = now.Add(2 * time.Minute)
		seen, _ := store.IsProcessed(ctx, "evt-2")
		assert.False(t, seen)
		fresh, _ = store.MarkProcessed(ctx, "evt-2", time.Minute)
		assert.True(t, fresh)
	})
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestTTLMap_Sweep(t *testing.T) {
	m := newTTLMap()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.setNX("short", "a", time.Second)
	m.setNX("long", "b", time.Hour)
	now = now.Add(time.Minute)

	assert.Equal(t, 1, m.sweep())
	assert.Equal(t, 1, m.len())
	_, ok := m.get("long")
	assert.True(t, ok)
}
