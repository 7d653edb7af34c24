package stream

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/opshub/pkg/logger"
	"go.uber.org/zap"
)

// DefaultHeartbeatInterval 默认心跳间隔
const DefaultHeartbeatInterval = 30 * time.Second

// ErrRegistryClosed 注册表已关闭
var ErrRegistryClosed = errors.New("stream: registry closed")

// Registry 按用户维护 SSE 连接
type Registry struct {
	mu        sync.RWMutex
	conns     map[int64]map[*Conn]struct{}
	closed    bool
	heartbeat time.Duration
	log       *zap.Logger
}

// Option 注册表选项
type Option func(*Registry)

// WithHeartbeatInterval 设置心跳间隔，<=0 关闭心跳
func WithHeartbeatInterval(d time.Duration) Option {
	return func(r *Registry) { r.heartbeat = d }
}

// NewRegistry 创建连接注册表
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		conns:     make(map[int64]map[*Conn]struct{}),
		heartbeat: DefaultHeartbeatInterval,
		log:       logger.Named("stream"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add 登记连接并启动心跳
func (r *Registry) Add(userID int64, c *Conn) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		c.Close()
		return ErrRegistryClosed
	}
	if !c.open() {
		r.mu.Unlock()
		return ErrClosed
	}
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.conns[userID] = set
	}
	set[c] = struct{}{}
	r.mu.Unlock()

	r.log.Debug("stream connected", zap.Int64("userId", userID), zap.String("conn", c.id))
	return nil
}

// Serve 在调用方协程写出连接的帧直到连接关闭，写入失败时移除连接
func (r *Registry) Serve(userID int64, c *Conn) {
	if err := c.Serve(r.heartbeat); err != nil {
		r.log.Debug("stream write failed", zap.Int64("userId", userID), zap.String("conn", c.id), zap.Error(err))
	}
	r.Remove(userID, c)
}

// Remove 移除并关闭连接，可重复调用
func (r *Registry) Remove(userID int64, c *Conn) {
	r.mu.Lock()
	if set, ok := r.conns[userID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(r.conns, userID)
			}
			r.log.Debug("stream disconnected", zap.Int64("userId", userID), zap.String("conn", c.id))
		}
	}
	r.mu.Unlock()
	c.Close()
}

// Broadcast 向用户的所有连接推送事件，返回成功入队的连接数
// 队列已满的连接视为失效并移除
func (r *Registry) Broadcast(userID int64, event string, payload any) int {
	r.mu.RLock()
	set := r.conns[userID]
	snapshot := make([]*Conn, 0, len(set))
	for c := range set {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	if len(snapshot) == 0 {
		return 0
	}

	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("marshal stream payload", zap.String("event", event), zap.Error(err))
		return 0
	}
	frame := encodeFrame(event, data)

	var failed []*Conn
	for _, c := range snapshot {
		if err := c.enqueue(frame); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		r.log.Debug("prune stream connection", zap.Int64("userId", userID), zap.String("conn", c.id))
		r.Remove(userID, c)
	}
	return len(snapshot) - len(failed)
}

// ConnectionCount 用户当前连接数
func (r *Registry) ConnectionCount(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}

// TotalConnections 全部连接数
func (r *Registry) TotalConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.conns {
		n += len(set)
	}
	return n
}

// UserCount 有连接的用户数
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll 关闭全部连接，之后不再接受新连接
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.closed = true
	all := make(map[*Conn]int64)
	for userID, set := range r.conns {
		for c := range set {
			all[c] = userID
		}
	}
	r.mu.Unlock()

	for c, userID := range all {
		r.Remove(userID, c)
	}
	r.log.Info("stream registry closed", zap.Int("connections", len(all)))
}
