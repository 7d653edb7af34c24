package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/opshub/pkg/auth"
	"github.com/opshub/pkg/cache"
	"github.com/opshub/pkg/config"
	"github.com/opshub/pkg/database"
	"github.com/opshub/pkg/errors"
	"github.com/opshub/pkg/lifecycle"
	"github.com/opshub/pkg/logger"
	"github.com/opshub/pkg/middleware"
	"github.com/opshub/pkg/router"
	"github.com/opshub/services/ops/internal/chat"
	"github.com/opshub/services/ops/internal/model"
	"github.com/opshub/services/ops/internal/notification"
	"github.com/opshub/services/ops/internal/permission"
	"github.com/opshub/services/ops/internal/project"
	"github.com/opshub/services/ops/internal/realtime"
	"github.com/opshub/services/ops/internal/role"
	"github.com/opshub/services/ops/internal/stream"
	"github.com/opshub/services/ops/internal/user"
	"go.uber.org/zap"
)

const serviceName = "ops-service"

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	flag.Parse()

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	// 初始化日志
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.JWT.Secret == "" {
		logger.Fatal("未配置 JWT 密钥")
	}

	// 初始化数据库
	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	if err := database.InitRedis(&cfg.Redis); err != nil {
		logger.Fatal("初始化Redis失败", zap.Error(err))
	}
	db := database.Get()
	rdb := database.GetRedis()

	jwtManager := auth.NewJWTManager(&cfg.JWT)

	// 权限解析
	permStore, closePermStore := cache.NewStore[permission.Set](&cfg.Cache, rdb, cfg.App.Name)
	resolver := permission.NewResolver(permStore, permission.NewRepository(db), cfg.Cache.DefaultTTL)

	// 实时通道
	registry := stream.NewRegistry(stream.WithHeartbeatInterval(cfg.Realtime.HeartbeatInterval))
	chatRepo := chat.NewRepository(db)
	gateway := realtime.NewGateway(chatRepo)
	dispatcher := notification.NewDispatcher(notification.NewRepository(db), gateway, registry)

	// 业务服务
	projectRepo := project.NewRepository(db)
	coordinator := chat.NewCoordinator(chatRepo, gateway, registry, projectRepo, resolver, dispatcher)
	coordinator.BindSocketEvents(gateway)
	projectSvc := project.NewService(projectRepo, coordinator, dispatcher)
	roleSvc := role.NewService(role.NewRepository(db), role.NewPermissionRepository(db), resolver, dispatcher)
	userSvc := user.NewService(user.NewRepository(db), user.NewLoginLogRepository(db), jwtManager)

	// 创建Fiber应用，SSE 长连接不设写超时
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		ReadTimeout:           time.Duration(cfg.Server.HTTP.ReadTimeout) * time.Second,
		ErrorHandler:          middleware.ErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(middleware.Recovery())
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog("/health"))
	app.Use(middleware.Cors())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "healthy",
			"service":     serviceName,
			"time":        time.Now().Format(time.RFC3339),
			"streams":     registry.TotalConnections(),
			"sockets":     gateway.ConnectionCount(),
			"onlineUsers": registry.UserCount(),
		})
	})

	middlewares := permission.Guards(middleware.JWTAuth(jwtManager), resolver)
	router.Register(app, middlewares,
		user.NewController(userSvc),
		role.NewController(roleSvc),
		project.NewController(projectSvc),
		chat.NewController(coordinator),
		notification.NewController(notification.NewRepository(db), dispatcher),
		stream.NewHandler(registry),
		realtime.NewTransport(gateway, jwtManager, cfg.Realtime.WriteTimeout),
	)

	err := lifecycle.New(serviceName).
		Node(fmt.Sprintf("%s-%d", serviceName, os.Getpid())).
		Addr(cfg.Server.HTTP.Addr()).
		Redis(rdb).
		App(app).
		OnStart(func(ctx context.Context) error {
			if err := db.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
				return fmt.Errorf("数据库迁移失败: %w", err)
			}
			return bootstrap(ctx, &cfg.Bootstrap, roleSvc, userSvc)
		}).
		OnReady(func(ctx context.Context) error {
			logger.Info("服务就绪", zap.String("addr", cfg.Server.HTTP.Addr()))
			return nil
		}).
		On(lifecycle.EventStopping, func(*lifecycle.Message) {
			// 长连接先断开，HTTP 关闭才不会等到超时
			registry.CloseAll()
			gateway.Close()
		}).
		OnStop(func(ctx context.Context) error {
			dispatcher.Wait()
			closePermStore()
			return nil
		}).
		Run(context.Background())
	if closeErr := database.CloseRedis(); closeErr != nil {
		logger.Warn("关闭Redis失败", zap.Error(closeErr))
	}
	if closeErr := database.Close(); closeErr != nil {
		logger.Warn("关闭数据库失败", zap.Error(closeErr))
	}
	if err != nil {
		logger.Fatal("服务异常退出", zap.Error(err))
	}
}

// bootstrap 同步权限目录，并确保初始管理员拥有 ADMIN 角色
func bootstrap(ctx context.Context, cfg *config.BootstrapConfig, roles *role.Service, users *user.Service) error {
	admin, err := roles.EnsureCatalog(ctx)
	if err != nil {
		return err
	}
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		logger.Warn("未配置初始管理员，跳过创建")
		return nil
	}
	u, created, err := users.EnsureUser(ctx, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("创建初始管理员失败: %w", err)
	}
	if err := roles.AssignRole(ctx, u.ID, admin.ID); err != nil && !errors.IsConflict(err) {
		return fmt.Errorf("分配管理员角色失败: %w", err)
	}
	if created {
		logger.Info("初始管理员已创建", zap.String("username", u.Username))
	}
	return nil
}
