package cache_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-food/internal/cache"
)

func TestJSONCacheRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := cache.NewJSON(client, time.Minute)
	ctx := context.Background()
	key := cache.KeyProduct("ABC")

	var out map[string]int
	hit, err := c.Get(ctx, key, &out)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, c.Set(ctx, key, map[string]int{"qty": 2}))
	hit, err = c.Get(ctx, key, &out)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 2, out["qty"])

	mr.FastForward(2 * time.Minute)
	hit, err = c.Get(ctx, key, &out)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, c.Set(ctx, key, map[string]int{"qty": 3}))
	require.NoError(t, c.Delete(ctx, key))
	hit, err = c.Get(ctx, key, &out)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestNilClientIsAlwaysMiss(t *testing.T) {
	c := cache.NewJSON(nil, time.Minute)
	var out string
	hit, err := c.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, c.Set(context.Background(), "k", "v"))
}
