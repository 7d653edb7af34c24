package lifecycle_test

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/opshub/pkg/lifecycle"
)

// ExampleBuilder 展示钩子与事件的执行顺序
func ExampleBuilder() {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	ctx, cancel := context.WithCancel(context.Background())

	err := lifecycle.New("example").
		Addr("127.0.0.1:0").
		App(app).
		On(lifecycle.EventStarting, func(msg *lifecycle.Message) {
			fmt.Println("event:", msg.Event)
		}).
		On(lifecycle.EventStopped, func(msg *lifecycle.Message) {
			fmt.Println("event:", msg.Event)
		}).
		OnStart(func(context.Context) error {
			fmt.Println("start")
			return nil
		}).
		OnReady(func(context.Context) error {
			fmt.Println("ready")
			cancel()
			return nil
		}).
		OnStop(func(context.Context) error {
			fmt.Println("stop: registry")
			return nil
		}).
		OnStop(func(context.Context) error {
			fmt.Println("stop: gateway")
			return nil
		}).
		Run(ctx)
	fmt.Println("err:", err)

	// Output:
	// event: starting
	// start
	// ready
	// stop: gateway
	// stop: registry
	// event: stopped
	// err: <nil>
}

// ExampleBuilder_startFailure 启动钩子失败时不会监听端口
func ExampleBuilder_startFailure() {
	err := lifecycle.New("example").
		Addr("127.0.0.1:0").
		App(fiber.New(fiber.Config{DisableStartupMessage: true})).
		OnStart(func(context.Context) error {
			return fmt.Errorf("migrate failed")
		}).
		Run(context.Background())
	fmt.Println(err)

	// Output:
	// start hook: migrate failed
}
