package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eaglebank/eagle/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testView struct {
	ID    string `json:"id"`
	Total int    `json:"total"`
}

func TestNewClientAndHealthy(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	assert.True(t, client.Healthy(context.Background()))

	mr.Close()
	assert.False(t, client.Healthy(context.Background()))
}

func TestNewClientUnreachable(t *testing.T) {
	_, err := NewClient(context.Background(), "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}

func TestViewCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	cache := NewViewCache[testView](client.Client, "view:", time.Minute, logger.Nop())

	_, ok := cache.Get(ctx, "a")
	assert.False(t, ok)

	cache.Set(ctx, "a", &testView{ID: "a", Total: 3})
	assert.True(t, mr.Exists("view:a"))
	assert.Equal(t, time.Minute, mr.TTL("view:a"))

	got, ok := cache.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 3, got.Total)

	cache.Delete(ctx, "a")
	_, ok = cache.Get(ctx, "a")
	assert.False(t, ok)
}

func TestViewCacheCorruptEntryIsAMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, mr.Set("view:bad", "{not json"))
	cache := NewViewCache[testView](client.Client, "view:", 0, logger.Nop())

	_, ok := cache.Get(context.Background(), "bad")
	assert.False(t, ok)
}
