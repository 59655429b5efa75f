package discovery_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ChaseHampton/lapida/internal/discovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s discovery.Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "http://127.0.0.1:5005/api"))
	base, ok, err := s.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:5005/api", base)

	require.NoError(t, s.Delete(ctx))
	_, ok, err = s.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, discovery.NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := discovery.ConnectRedis(ctx, addr, os.Getenv("REDIS_PASSWORD"), 15)
	if err != nil {
		t.Skipf("skipping integration test: redis not reachable: %v", err)
	}
	defer client.Close()

	store := discovery.NewRedisStore(client, "lapida:test:api-base", time.Minute)
	require.NoError(t, store.Delete(context.Background()))
	exerciseStore(t, store)
}
