package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"climdash/pkg/storage"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix 是所有解析缓存键的 Redis 前缀
const KeyPrefix = "climdash:res:"

// setTimeout 限制一次回填写入的时长
const setTimeout = 2 * time.Second

// RedisCache 是跨进程共享的解析缓存
// 多个仪表盘实例共用一份解析结果，TTL 由 Redis 负责。
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

type RedisConfig struct {
	URL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL time.Duration // 过期时间
}

func NewRedisCache(cfg RedisConfig, logger *slog.Logger) (*RedisCache, error) {
	// 解析 URL
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, cfg.TTL, logger), nil
}

// NewRedisCacheWithClient 复用已有的 Redis 客户端
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (c *RedisCache) cacheKey(key string) string {
	return KeyPrefix + key
}

func (c *RedisCache) Get(ctx context.Context, key string) (storage.Handle, bool) {
	raw, err := c.client.Get(ctx, c.cacheKey(key)).Bytes()
	if err == redis.Nil {
		return storage.Handle{}, false
	}
	if err != nil {
		// 缓存故障降级：Redis 挂了就当作未命中，直接去探测后端
		c.logger.WarnContext(ctx, "redis get failed, treating as miss", "key", key, "error", err)
		return storage.Handle{}, false
	}

	var h storage.Handle
	if err := cbor.Unmarshal(raw, &h); err != nil || h.IsZero() {
		c.logger.WarnContext(ctx, "dropping undecodable cache entry", "key", key, "error", err)
		c.client.Del(ctx, c.cacheKey(key))
		return storage.Handle{}, false
	}
	return h, true
}

// Set 写入缓存，不阻塞解析主流程
func (c *RedisCache) Set(ctx context.Context, key string, h storage.Handle) {
	raw, err := cbor.Marshal(h)
	if err != nil {
		c.logger.WarnContext(ctx, "encode cache entry failed", "key", key, "error", err)
		return
	}

	// 同步写入：后续的 Delete 不能被一个迟到的写覆盖
	// 上层 ctx 取消 (解析预算耗尽) 不影响回填，但写入本身有时限
	fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), setTimeout)
	defer cancel()
	if err := c.client.Set(fillCtx, c.cacheKey(key), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "redis set failed", "key", key, "error", err)
	}
}

func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.cacheKey(key)).Err(); err != nil {
		c.logger.WarnContext(ctx, "redis del failed", "key", key, "error", err)
	}
}

// DeletePrefix 用 SCAN 找出匹配的键再批量删除 (避免 KEYS 阻塞 Redis)
func (c *RedisCache) DeletePrefix(ctx context.Context, prefix string) int {
	pattern := c.cacheKey(escapeGlob(prefix)) + "*"

	n := 0
	iter := c.client.Scan(ctx, 0, pattern, 256).Iterator()
	var batch []string
	flush := func() {
		if len(batch) == 0 {
			return
		}
		deleted, err := c.client.Del(ctx, batch...).Result()
		if err != nil {
			c.logger.WarnContext(ctx, "redis del failed", "prefix", prefix, "error", err)
		}
		n += int(deleted)
		batch = batch[:0]
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 256 {
			flush()
		}
	}
	flush()
	if err := iter.Err(); err != nil {
		c.logger.WarnContext(ctx, "redis scan failed", "prefix", prefix, "error", err)
	}
	return n
}

func (c *RedisCache) Close() error { return c.client.Close() }

// escapeGlob 转义 Redis MATCH 模式中的特殊字符
func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
