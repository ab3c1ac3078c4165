//go:build integration

package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisURL := fmt.Sprintf("redis://%s:%s", host, port.Port())

	cleanup := func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	}

	return redisURL, cleanup
}

// TestRedisStore_ConcurrentWritersAgainstRealRedis races writers against a real
// Redis server so WATCH/MULTI is exercised with true network interleaving.
func TestRedisStore_ConcurrentWritersAgainstRealRedis(t *testing.T) {
	redisURL, cleanup := setupRedis(t)
	defer cleanup()

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			store, err := NewRedisStore(opts, "it")
			if !assert.NoError(t, err) {
				return
			}
			defer store.Close()

			id := fmt.Sprintf("orch-writer-%d", i)
			for {
				doc, version, err := store.GetLatest(ctx)
				if !assert.NoError(t, err) {
					return
				}
				doc.Installs[id] = NewRecord(InitialCredits, DefaultTool, time.Now())
				_, err = store.PutIfMatch(ctx, doc, version)
				if IsConflict(err) {
					continue
				}
				assert.NoError(t, err)
				return
			}
		}(i)
	}
	wg.Wait()

	store, err := NewRedisStore(opts, "it")
	require.NoError(t, err)
	defer store.Close()

	doc, version, err := store.GetLatest(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Installs, writers)
	assert.Equal(t, Version(fmt.Sprintf("%d", writers)), version)
}
