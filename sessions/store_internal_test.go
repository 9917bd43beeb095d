package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_EvictKeepsRewrittenEntry(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	NowTimeFunc = func() time.Time { return now }
	t.Cleanup(func() { NowTimeFunc = time.Now })

	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "k", []byte("old"), time.Minute))
	now = now.Add(time.Minute)

	// A Get saw the old entry expired; a Set lands before it takes the write lock.
	require.NoError(t, store.Set(ctx, "k", []byte("new"), time.Minute))
	store.evictExpired("k")

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), got)

	now = now.Add(time.Minute)
	store.evictExpired("k")
	require.NotContains(t, store.entries, "k")
}
