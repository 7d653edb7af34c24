package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opshub/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisCache 基于 Redis 的共享缓存，值以 JSON 存储
type RedisCache[V any] struct {
	client     redis.UniversalClient
	namespace  string
	defaultTTL time.Duration
	scanCount  int64
}

// NewRedis 创建 Redis 缓存，namespace 为空时不加前缀
func NewRedis[V any](client redis.UniversalClient, namespace string, defaultTTL time.Duration) *RedisCache[V] {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &RedisCache[V]{
		client:     client,
		namespace:  namespace,
		defaultTTL: defaultTTL,
		scanCount:  200,
	}
}

func (c *RedisCache[V]) key(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + ":" + key
}

// Get 获取缓存，读取失败按未命中处理
func (c *RedisCache[V]) Get(ctx context.Context, key string) (V, bool) {
	var v V
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("redis cache get failed", logger.String("key", key), logger.Err(err))
		}
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		logger.Warn("redis cache decode failed", logger.String("key", key), logger.Err(err))
		return v, false
	}
	return v, true
}

// Set 设置缓存
func (c *RedisCache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// Delete 删除缓存
func (c *RedisCache[V]) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// DeletePrefix 先 SCAN 出全部匹配键再分批 DEL，扫描过程中不修改键空间
func (c *RedisCache[V]) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, escapeGlob(c.key(prefix))+"*", c.scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}

	count := 0
	for start := 0; start < len(keys); start += int(c.scanCount) {
		end := min(start+int(c.scanCount), len(keys))
		n, err := c.client.Del(ctx, keys[start:end]...).Result()
		count += int(n)
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// escapeGlob 转义 MATCH 模式中的通配字符
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
