package cache

import (
	"github.com/opshub/pkg/config"
	"github.com/redis/go-redis/v9"
)

// NewStore 按配置选择缓存后端，返回的 close 用于停止后台清理
func NewStore[V any](cfg *config.CacheConfig, client redis.UniversalClient, namespace string) (Store[V], func()) {
	if cfg.Driver == "redis" && client != nil {
		return NewRedis[V](client, namespace, cfg.DefaultTTL), func() {}
	}
	c := New[V](WithDefaultTTL(cfg.DefaultTTL), WithSweepInterval(cfg.SweepInterval))
	return c, c.Close
}
