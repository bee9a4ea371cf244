package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bspnl.com/pkg/options"
	"bspnl.com/pkg/scenario"
)

var entry = options.Params{SpotPrice: 50, StrikePrice: 40, TimeToExpiry: 2.5, RiskFreeRate: 0.04, Volatility: 0.4}

// setupRedis 默认连接 localhost:6379，可用 REDIS_ADDR 覆盖
func setupRedis(t *testing.T) *SurfaceCache {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	c := NewSurfaceCache(NewRedisClient(addr), time.Minute)
	if err := c.Ping(context.Background()); err != nil {
		t.Skipf("skipping test; redis not available: %v", err)
	}
	return c
}

func TestSurfaceKey(t *testing.T) {
	spot := []float64{45, 50, 55}
	vol := []float64{0.3, 0.4}

	k1 := SurfaceKey(entry, spot, vol)
	require.Equal(t, k1, SurfaceKey(entry, []float64{45, 50, 55}, []float64{0.3, 0.4}))
	require.Len(t, k1, 36)

	require.NotEqual(t, k1, SurfaceKey(entry.WithSpot(51), spot, vol))
	require.NotEqual(t, k1, SurfaceKey(entry, spot, []float64{0.3, 0.5}))
	// 轴互换不能撞 key
	require.NotEqual(t, SurfaceKey(entry, []float64{1}, []float64{2}), SurfaceKey(entry, []float64{2}, []float64{1}))
}

func TestSurfaceCache_SetGet(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	spot := []float64{45, 50, 55}
	vol := []float64{0.3, 0.4}
	s, err := scenario.NewEngine(1).BuildSurface(ctx, entry, spot, vol)
	require.NoError(t, err)

	key := SurfaceKey(entry, spot, vol)
	t.Cleanup(func() { c.client.Del(context.Background(), keyPrefix+key) })

	miss, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.Nil(t, miss)

	require.NoError(t, c.Set(ctx, key, s))
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, s, got)
}
