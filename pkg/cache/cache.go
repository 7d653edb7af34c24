package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTTL 默认过期时间
	DefaultTTL = 10 * time.Minute
	// DefaultSweepInterval 默认过期清理间隔
	DefaultSweepInterval = 60 * time.Second
)

// Store 带过期时间的键值缓存
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	// Set ttl<=0 时使用默认过期时间
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// entry 缓存项
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// expired now >= expiresAt 即视为过期
func (e *entry[V]) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// Option 内存缓存选项
type Option func(*options)

type options struct {
	defaultTTL    time.Duration
	sweepInterval time.Duration
	now           func() time.Time
}

// WithDefaultTTL 设置默认过期时间
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.defaultTTL = ttl
		}
	}
}

// WithSweepInterval 设置清理间隔，<=0 关闭后台清理
func WithSweepInterval(interval time.Duration) Option {
	return func(o *options) { o.sweepInterval = interval }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// TTLCache 进程内过期缓存
type TTLCache[V any] struct {
	items map[string]*entry[V]
	mu    sync.RWMutex
	opts  options

	stopSweep chan struct{}
	closeOnce sync.Once
}

// New 创建内存缓存
func New[V any](opts ...Option) *TTLCache[V] {
	o := options{
		defaultTTL:    DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &TTLCache[V]{
		items:     make(map[string]*entry[V]),
		opts:      o,
		stopSweep: make(chan struct{}),
	}
	if o.sweepInterval > 0 {
		go c.sweepLoop(o.sweepInterval)
	}
	return c
}

// sweepLoop 定期清理过期项，与读流量无关地限制内存
func (c *TTLCache[V]) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.DeleteExpired()
		case <-c.stopSweep:
			return
		}
	}
}

// Get 获取缓存，过期项视为不存在并惰性删除
func (c *TTLCache[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V
	now := c.opts.now()

	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if !item.expired(now) {
		return item.value, true
	}

	c.mu.Lock()
	// 重新检查，避免删掉并发写入的新值
	if cur, ok := c.items[key]; ok && cur.expired(now) {
		delete(c.items, key)
	}
	c.mu.Unlock()
	return zero, false
}

// Set 设置缓存
func (c *TTLCache[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.opts.defaultTTL
	}
	e := &entry[V]{value: value, expiresAt: c.opts.now().Add(ttl)}

	c.mu.Lock()
	c.items[key] = e
	c.mu.Unlock()
	return nil
}

// Delete 删除缓存
func (c *TTLCache[V]) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// DeletePrefix 删除指定前缀的所有缓存
func (c *TTLCache[V]) DeletePrefix(_ context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
			count++
		}
	}
	return count, nil
}

// DeleteExpired 删除所有过期项
func (c *TTLCache[V]) DeleteExpired() int {
	now := c.opts.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
			count++
		}
	}
	return count
}

// Len 当前条目数（含尚未清理的过期项）
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close 停止后台清理
func (c *TTLCache[V]) Close() {
	c.closeOnce.Do(func() { close(c.stopSweep) })
}
