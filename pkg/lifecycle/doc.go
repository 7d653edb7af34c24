// Package lifecycle 提供单进程服务的启动、就绪与优雅关闭
//
// # 钩子顺序
//
//  1. OnStart: 监听端口之前执行，用于迁移数据库、预热数据
//  2. OnReady: 端口已监听后执行
//  3. OnStop: 关闭 HTTP 服务之后按注册的逆序执行，用于释放连接、关闭推送通道
//
// 每个阶段都会产生一个生命周期事件（starting、started、ready、stopping、stopped），
// 可以通过 Builder.On 监听；设置了 Redis 时事件同时发布到 service:lifecycle 频道。
//
// # 使用示例
//
//	err := lifecycle.New("ops").
//		Addr(":8080").
//		App(app).
//		OnStart(func(ctx context.Context) error {
//			return database.AutoMigrate(model.All()...)
//		}).
//		OnStop(func(ctx context.Context) error {
//			registry.CloseAll()
//			return nil
//		}).
//		Run(context.Background())
package lifecycle
