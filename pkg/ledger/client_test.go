package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a test store connected to a miniredis instance
func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test-ns")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func TestNewRedisStore(t *testing.T) {
	t.Run("creates store successfully", func(t *testing.T) {
		store, _ := setupTestStore(t)
		assert.NotNil(t, store)
		assert.Equal(t, "test-ns", store.namespace)
	})

	t.Run("rejects empty namespace", func(t *testing.T) {
		_, err := NewRedisStore(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "namespace cannot be empty")
	})

	t.Run("rejects invalid namespace", func(t *testing.T) {
		_, err := NewRedisStore(&redis.Options{Addr: "localhost:6379"}, "Bad_NS")
		assert.Error(t, err)
	})
}

func TestPing(t *testing.T) {
	store, _ := setupTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestRedisStore_GetLatestEmpty(t *testing.T) {
	store, _ := setupTestStore(t)

	doc, version, err := store.GetLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NoVersion, version)
	assert.Empty(t, doc.Installs)
}

func TestRedisStore_PutIfMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("creates document at NoVersion", func(t *testing.T) {
		store, mr := setupTestStore(t)

		doc := New()
		doc.Installs["orch-a"] = NewRecord(3, DefaultTool, time.Now())

		version, err := store.PutIfMatch(ctx, doc, NoVersion)
		require.NoError(t, err)
		assert.Equal(t, Version("1"), version)

		// Verify the raw hash layout
		assert.Equal(t, "1", mr.HGet(LedgerKey("test-ns"), HashFieldVersion))
		assert.Contains(t, mr.HGet(LedgerKey("test-ns"), HashFieldDocument), `"orch-a"`)

		got, gotVersion, err := store.GetLatest(ctx)
		require.NoError(t, err)
		assert.Equal(t, version, gotVersion)
		require.Contains(t, got.Installs, "orch-a")
		assert.Equal(t, 3, got.Installs["orch-a"].ReferralCredits)
	})

	t.Run("rejects stale version", func(t *testing.T) {
		store, _ := setupTestStore(t)

		_, err := store.PutIfMatch(ctx, New(), NoVersion)
		require.NoError(t, err)

		stale := New()
		stale.Installs["orch-b"] = NewRecord(3, DefaultTool, time.Now())
		_, err = store.PutIfMatch(ctx, stale, NoVersion)
		require.Error(t, err)
		assert.True(t, IsConflict(err))

		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, NoVersion, conflict.Expected)
		assert.Equal(t, Version("1"), conflict.Current)

		// Stored document untouched
		got, version, err := store.GetLatest(ctx)
		require.NoError(t, err)
		assert.Equal(t, Version("1"), version)
		assert.NotContains(t, got.Installs, "orch-b")
	})

	t.Run("versions increase monotonically", func(t *testing.T) {
		store, _ := setupTestStore(t)

		version := NoVersion
		for i := 0; i < 3; i++ {
			next, err := store.PutIfMatch(ctx, New(), version)
			require.NoError(t, err)
			version = next
		}
		assert.Equal(t, Version("3"), version)
	})

	t.Run("fails when Redis is down", func(t *testing.T) {
		store, err := NewRedisStore(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 200 * time.Millisecond,
			MaxRetries:  -1,
		}, "test-ns")
		require.NoError(t, err)
		defer store.Close()

		_, err = store.PutIfMatch(ctx, New(), NoVersion)
		require.Error(t, err)
		assert.False(t, IsConflict(err))
	})
}

func TestRedisStore_NamespaceIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	a, err := NewRedisStore(&redis.Options{Addr: mr.Addr()}, "ns-a")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedisStore(&redis.Options{Addr: mr.Addr()}, "ns-b")
	require.NoError(t, err)
	defer b.Close()

	doc := New()
	doc.Installs["orch-a"] = NewRecord(3, DefaultTool, time.Now())
	_, err = a.PutIfMatch(ctx, doc, NoVersion)
	require.NoError(t, err)

	got, version, err := b.GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, NoVersion, version)
	assert.Empty(t, got.Installs)
}

func TestSubscribeLedgerEvents(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := store.SubscribeLedgerEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	doc := New()
	doc.Installs["orch-a"] = NewRecord(3, DefaultTool, time.Now())
	_, err = store.PutIfMatch(ctx, doc, NoVersion)
	require.NoError(t, err)

	select {
	case event := <-sub.Events():
		require.NotNil(t, event)
		assert.Equal(t, Version("1"), event.Version)
		assert.Equal(t, 1, event.Installs)
	case <-ctx.Done():
		t.Fatal("timed out waiting for ledger event")
	}

	// Close is idempotent
	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
}
