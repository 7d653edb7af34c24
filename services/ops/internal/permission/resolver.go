package permission

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opshub/pkg/cache"
	"github.com/opshub/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// KeyPrefix 权限缓存键前缀
const KeyPrefix = "permissions:"

// CacheKey 用户权限缓存键
func CacheKey(userID int64) string {
	return KeyPrefix + strconv.FormatInt(userID, 10)
}

// Resolver 计算用户的有效权限集合。
// 角色分配、角色授权或权限本身发生变更后，调用方必须在变更完成前调用
// Invalidate 或 InvalidateAll。
type Resolver struct {
	cache  cache.Store[Set]
	loader Loader
	ttl    time.Duration
	log    *zap.Logger

	group singleflight.Group
	// 每次失效自增，失效前发起的加载结果不再写入缓存
	generation atomic.Uint64
	// 串行化"比较代数后写入"与"失效"
	writeMu sync.Mutex
}

// NewResolver 创建解析器，ttl<=0 时使用缓存默认值
func NewResolver(store cache.Store[Set], loader Loader, ttl time.Duration) *Resolver {
	return &Resolver{
		cache:  store,
		loader: loader,
		ttl:    ttl,
		log:    logger.Named("permission"),
	}
}

// Resolve 返回用户权限集合，结果只读
func (r *Resolver) Resolve(ctx context.Context, userID int64) (Set, error) {
	key := CacheKey(userID)
	if set, ok := r.cache.Get(ctx, key); ok {
		return set, nil
	}

	gen := r.generation.Load()
	flightKey := key + "#" + strconv.FormatUint(gen, 10)
	ch := r.group.DoChan(flightKey, func() (interface{}, error) {
		return r.load(context.WithoutCancel(ctx), userID, key, gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Set), nil
	}
}

func (r *Resolver) load(ctx context.Context, userID int64, key string, gen uint64) (Set, error) {
	names, err := r.loader.LoadPermissionNames(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load permissions for user %d: %w", userID, err)
	}

	set := make(Set, len(names))
	for _, raw := range names {
		name, ok := Parse(raw)
		if !ok {
			r.log.Warn("ignoring permission outside catalog", zap.String("name", raw), logger.UserID(userID))
			continue
		}
		set[name] = struct{}{}
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.generation.Load() == gen {
		if err := r.cache.Set(ctx, key, set, r.ttl); err != nil {
			r.log.Warn("cache permissions failed", logger.UserID(userID), zap.Error(err))
		}
	}
	return set, nil
}

// HasAny 用户是否拥有任一权限
func (r *Resolver) HasAny(ctx context.Context, userID int64, names ...Name) (bool, error) {
	set, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.HasAny(names...), nil
}

// HasAll 用户是否拥有全部权限
func (r *Resolver) HasAll(ctx context.Context, userID int64, names ...Name) (bool, error) {
	set, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.HasAll(names...), nil
}

// Invalidate 失效单个用户的缓存
func (r *Resolver) Invalidate(ctx context.Context, userID int64) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.generation.Add(1)
	if err := r.cache.Delete(ctx, CacheKey(userID)); err != nil {
		return fmt.Errorf("invalidate permissions for user %d: %w", userID, err)
	}
	return nil
}

// InvalidateAll 失效全部用户的缓存
func (r *Resolver) InvalidateAll(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.generation.Add(1)
	n, err := r.cache.DeletePrefix(ctx, KeyPrefix)
	if err != nil {
		return fmt.Errorf("invalidate all permissions: %w", err)
	}
	r.log.Debug("permission cache cleared", zap.Int("entries", n))
	return nil
}
