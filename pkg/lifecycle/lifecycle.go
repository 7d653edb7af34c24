package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/opshub/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event 生命周期事件类型
type Event string

const (
	EventStarting Event = "starting" // 服务启动中
	EventStarted  Event = "started"  // 服务已启动
	EventReady    Event = "ready"    // 服务就绪（可接收请求）
	EventStopping Event = "stopping" // 服务停止中
	EventStopped  Event = "stopped"  // 服务已停止
)

// Channel 生命周期事件发布频道
const Channel = "service:lifecycle"

// Message 生命周期消息
type Message struct {
	Service   string    `json:"service"`
	NodeID    string    `json:"nodeId"`
	Event     Event     `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler 生命周期事件处理器
type Handler func(msg *Message)

// Manager 生命周期管理器
//
// 事件先分发给本进程内的处理器，配置了 Redis 时再发布到 Channel 供外部观察。
type Manager struct {
	service  string
	nodeID   string
	redis    redis.UniversalClient
	handlers map[Event][]Handler
	mu       sync.RWMutex
}

// NewManager 创建生命周期管理器，client 可以为 nil
func NewManager(service, nodeID string, client redis.UniversalClient) *Manager {
	return &Manager{
		service:  service,
		nodeID:   nodeID,
		redis:    client,
		handlers: make(map[Event][]Handler),
	}
}

// OnEvent 监听特定生命周期事件
func (m *Manager) OnEvent(event Event, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], handler)
}

// Emit 发布生命周期事件
func (m *Manager) Emit(ctx context.Context, event Event) error {
	msg := &Message{
		Service:   m.service,
		NodeID:    m.nodeID,
		Event:     event,
		Timestamp: time.Now(),
	}

	m.mu.RLock()
	handlers := append([]Handler(nil), m.handlers[event]...)
	m.mu.RUnlock()
	for _, h := range handlers {
		h(msg)
	}

	if m.redis == nil {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal lifecycle message: %w", err)
	}
	if err := m.redis.Publish(ctx, Channel, data).Err(); err != nil {
		logger.Warn("发布生命周期事件失败", zap.String("event", string(event)), zap.Error(err))
		return err
	}
	return nil
}
