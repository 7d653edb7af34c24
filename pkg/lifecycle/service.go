package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/opshub/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Hook 生命周期钩子
type Hook func(ctx context.Context) error

// ServiceOptions 服务配置选项
type ServiceOptions struct {
	Name            string                // 服务名称
	NodeID          string                // 节点ID
	Address         string                // 监听地址
	ShutdownTimeout time.Duration         // 优雅关闭超时
	Redis           redis.UniversalClient // 生命周期事件发布，可选
}

// Service 服务包装器
type Service struct {
	opts      *ServiceOptions
	app       *fiber.App
	lifecycle *Manager
	addr      net.Addr

	onStart []Hook
	onReady []Hook
	onStop  []Hook
}

// NewService 创建服务
func NewService(opts *ServiceOptions) *Service {
	if opts.NodeID == "" {
		opts.NodeID = opts.Name + "-1"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Service{
		opts:      opts,
		lifecycle: NewManager(opts.Name, opts.NodeID, opts.Redis),
	}
}

// SetApp 设置Fiber应用
func (s *Service) SetApp(app *fiber.App) {
	s.app = app
}

// Lifecycle 获取生命周期管理器
func (s *Service) Lifecycle() *Manager {
	return s.lifecycle
}

// Addr 实际监听地址，Run 之前为 nil
func (s *Service) Addr() net.Addr {
	return s.addr
}

// OnStart 注册启动钩子
func (s *Service) OnStart(fn Hook) {
	s.onStart = append(s.onStart, fn)
}

// OnReady 注册就绪钩子
func (s *Service) OnReady(fn Hook) {
	s.onReady = append(s.onReady, fn)
}

// OnStop 注册停止钩子，按注册的逆序执行
func (s *Service) OnStop(fn Hook) {
	s.onStop = append(s.onStop, fn)
}

// Run 运行服务，直到 ctx 取消或收到 SIGINT/SIGTERM
func (s *Service) Run(ctx context.Context) error {
	if s.app == nil {
		return errors.New("lifecycle: fiber app not set")
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = s.lifecycle.Emit(ctx, EventStarting)

	for _, fn := range s.onStart {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("start hook: %w", err)
		}
	}

	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Address, err)
	}
	s.addr = ln.Addr()
	_ = s.lifecycle.Emit(ctx, EventStarted)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务启动",
			zap.String("service", s.opts.Name),
			zap.String("address", s.addr.String()),
		)
		if err := s.app.Listener(ln); err != nil {
			errCh <- err
		}
	}()

	for _, fn := range s.onReady {
		if err := fn(ctx); err != nil {
			_ = s.Shutdown()
			return fmt.Errorf("ready hook: %w", err)
		}
	}
	_ = s.lifecycle.Emit(ctx, EventReady)

	select {
	case <-ctx.Done():
		logger.Info("收到退出信号，正在关闭服务...")
	case err := <-errCh:
		_ = s.Shutdown()
		return fmt.Errorf("server error: %w", err)
	}

	return s.Shutdown()
}

// Shutdown 优雅关闭服务
func (s *Service) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	_ = s.lifecycle.Emit(ctx, EventStopping)

	// 先停止接收新请求
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			logger.Error("关闭HTTP服务失败", zap.Error(err))
		}
	}

	for i := len(s.onStop) - 1; i >= 0; i-- {
		if err := s.onStop[i](ctx); err != nil {
			logger.Error("停止钩子执行失败", zap.Error(err))
		}
	}

	_ = s.lifecycle.Emit(ctx, EventStopped)
	logger.Info("服务已关闭", zap.String("service", s.opts.Name))
	return nil
}
