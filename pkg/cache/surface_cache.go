// 文件: pkg/cache/surface_cache.go
// PnL 曲面缓存 (Redis)
//
// 同一组 (入场参数, 标的轴, 波动率轴) 的曲面是确定的，
// 仪表盘反复刷新时直接读缓存。

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"bspnl.com/pkg/options"
	"bspnl.com/pkg/scenario"
)

const keyPrefix = "surface:"

type SurfaceCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewSurfaceCache ttl<=0 时取 15 分钟
func NewSurfaceCache(client redis.UniversalClient, ttl time.Duration) *SurfaceCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SurfaceCache{client: client, ttl: ttl}
}

// NewRedisClient 单机客户端
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// Ping 检查连接
func (c *SurfaceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get 未命中返回 (nil, nil)
func (c *SurfaceCache) Get(ctx context.Context, key string) (*scenario.Surface, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get surface from redis: %w", err)
	}
	var s scenario.Surface
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal surface: %w", err)
	}
	return &s, nil
}

func (c *SurfaceCache) Set(ctx context.Context, key string, s *scenario.Surface) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal surface: %w", err)
	}
	return c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err()
}

// SurfaceKey 由入场参数和两条轴生成确定性的 key (UUIDv5)
func SurfaceKey(entry options.Params, spotAxis, volAxis []float64) string {
	var b strings.Builder
	writeFloats(&b, entry.SpotPrice, entry.StrikePrice, entry.TimeToExpiry, entry.RiskFreeRate, entry.Volatility)
	b.WriteByte('|')
	writeFloats(&b, spotAxis...)
	b.WriteByte('|')
	writeFloats(&b, volAxis...)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(b.String())).String()
}

func writeFloats(b *strings.Builder, vs ...float64) {
	for i, v := range vs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
}
