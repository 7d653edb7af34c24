package router

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Route 路由配置
type Route struct {
	Method      string          // HTTP方法
	Path        string          // 相对前缀的路径，以 ~ 开头表示绝对路径
	Handler     fiber.Handler   // 处理函数
	Middlewares []fiber.Handler // 路由级中间件
}

// Middlewares 具名中间件集合，例如 "jwt"
type Middlewares map[string]fiber.Handler

// Use 按名称取出中间件，名称未注册视为装配错误
func (m Middlewares) Use(names ...string) []fiber.Handler {
	handlers := make([]fiber.Handler, 0, len(names))
	for _, name := range names {
		h, ok := m[name]
		if !ok {
			panic(fmt.Sprintf("router: middleware %q not registered", name))
		}
		handlers = append(handlers, h)
	}
	return handlers
}

// Registrar 路由注册器接口
type Registrar interface {
	// Prefix 返回路由前缀
	Prefix() string
	// Routes 返回路由配置列表
	Routes(m Middlewares) []Route
}

// Register 注册控制器路由
func Register(app fiber.Router, m Middlewares, controllers ...Registrar) {
	for _, ctrl := range controllers {
		g := app.Group(ctrl.Prefix())
		for _, route := range ctrl.Routes(m) {
			handlers := append(append([]fiber.Handler{}, route.Middlewares...), route.Handler)
			if abs, ok := strings.CutPrefix(route.Path, "~"); ok {
				app.Add(route.Method, abs, handlers...)
				continue
			}
			g.Add(route.Method, route.Path, handlers...)
		}
	}
}
