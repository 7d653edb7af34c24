package stream

import (
	"bufio"

	"github.com/gofiber/fiber/v2"
	"github.com/opshub/pkg/middleware"
	"github.com/opshub/pkg/response"
	"github.com/opshub/pkg/router"
	"github.com/opshub/services/ops/internal/permission"
	"github.com/valyala/fasthttp"
)

// EventConnected 握手成功后的首帧
const EventConnected = "connected"

// Handler SSE 推送入口
type Handler struct {
	registry *Registry
}

// NewHandler 创建推送处理器
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// Prefix 返回路由前缀
func (h *Handler) Prefix() string {
	return "/api/stream"
}

// Routes 返回路由配置
func (h *Handler) Routes(m router.Middlewares) []router.Route {
	return []router.Route{
		{Method: fiber.MethodGet, Path: "", Handler: h.stream, Middlewares: m.Use("jwt")},
		{Method: fiber.MethodGet, Path: "/stats", Handler: h.stats, Middlewares: m.Use("jwt", permission.GuardKey(permission.ViewConnections))},
	}
}

// stream 建立 SSE 连接，首帧为 connected
func (h *Handler) stream(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		conn := NewConn(userID, w)
		if err := conn.writeNow(EventConnected, fiber.Map{"userId": userID}); err != nil {
			return
		}
		if err := h.registry.Add(userID, conn); err != nil {
			return
		}
		h.registry.Serve(userID, conn)
	}))
	return nil
}

// Stats 连接统计
type Stats struct {
	TotalConnections int `json:"totalConnections"`
	Users            int `json:"users"`
	Mine             int `json:"mine"`
}

func (h *Handler) stats(c *fiber.Ctx) error {
	return response.Success(c, Stats{
		TotalConnections: h.registry.TotalConnections(),
		Users:            h.registry.UserCount(),
		Mine:             h.registry.ConnectionCount(middleware.GetUserID(c)),
	})
}
