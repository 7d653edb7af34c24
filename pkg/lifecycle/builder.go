package lifecycle

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Builder 服务构建器 - 链式调用创建服务
type Builder struct {
	opts     *ServiceOptions
	app      *fiber.App
	onStart  []Hook
	onReady  []Hook
	onStop   []Hook
	handlers map[Event][]Handler
}

// New 创建服务构建器
func New(name string) *Builder {
	return &Builder{
		opts:     &ServiceOptions{Name: name},
		handlers: make(map[Event][]Handler),
	}
}

// Node 设置节点ID
func (b *Builder) Node(nodeID string) *Builder {
	b.opts.NodeID = nodeID
	return b
}

// Addr 设置监听地址
func (b *Builder) Addr(addr string) *Builder {
	b.opts.Address = addr
	return b
}

// ShutdownTimeout 设置优雅关闭超时
func (b *Builder) ShutdownTimeout(d time.Duration) *Builder {
	b.opts.ShutdownTimeout = d
	return b
}

// Redis 设置生命周期事件发布用的 Redis
func (b *Builder) Redis(client redis.UniversalClient) *Builder {
	b.opts.Redis = client
	return b
}

// App 设置Fiber应用
func (b *Builder) App(app *fiber.App) *Builder {
	b.app = app
	return b
}

// OnStart 添加启动钩子
func (b *Builder) OnStart(fn Hook) *Builder {
	b.onStart = append(b.onStart, fn)
	return b
}

// OnReady 添加就绪钩子
func (b *Builder) OnReady(fn Hook) *Builder {
	b.onReady = append(b.onReady, fn)
	return b
}

// OnStop 添加停止钩子
func (b *Builder) OnStop(fn Hook) *Builder {
	b.onStop = append(b.onStop, fn)
	return b
}

// On 监听生命周期事件
func (b *Builder) On(event Event, handler Handler) *Builder {
	b.handlers[event] = append(b.handlers[event], handler)
	return b
}

// Build 构建服务
func (b *Builder) Build() *Service {
	svc := NewService(b.opts)
	if b.app != nil {
		svc.SetApp(b.app)
	}
	for _, fn := range b.onStart {
		svc.OnStart(fn)
	}
	for _, fn := range b.onReady {
		svc.OnReady(fn)
	}
	for _, fn := range b.onStop {
		svc.OnStop(fn)
	}
	for event, hs := range b.handlers {
		for _, h := range hs {
			svc.Lifecycle().OnEvent(event, h)
		}
	}
	return svc
}

// Run 构建并运行服务
func (b *Builder) Run(ctx context.Context) error {
	return b.Build().Run(ctx)
}
