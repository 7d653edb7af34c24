package notification

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/opshub/pkg/dal"
	"github.com/opshub/pkg/errors"
	"github.com/opshub/pkg/middleware"
	"github.com/opshub/pkg/response"
	"github.com/opshub/pkg/router"
	"github.com/opshub/pkg/validate"
	"github.com/opshub/services/ops/internal/permission"
)

// SendRequest 手动发送通知请求
type SendRequest struct {
	UserID  int64           `json:"userId" validate:"required,gt=0"`
	Type    string          `json:"type" validate:"required,max=50"`
	Title   string          `json:"title" validate:"required,max=200"`
	Message string          `json:"message" validate:"max=2000"`
	Payload json.RawMessage `json:"payload"`
}

// Controller 通知控制器
type Controller struct {
	repo       Repository
	dispatcher *Dispatcher
}

// NewController 创建通知控制器
func NewController(repo Repository, dispatcher *Dispatcher) *Controller {
	return &Controller{repo: repo, dispatcher: dispatcher}
}

// Prefix 返回路由前缀
func (c *Controller) Prefix() string {
	return "/api/notifications"
}

// Routes 返回路由配置
func (c *Controller) Routes(m router.Middlewares) []router.Route {
	jwt := m.Use("jwt")
	return []router.Route{
		{Method: fiber.MethodGet, Path: "", Handler: c.list, Middlewares: jwt},
		{Method: fiber.MethodGet, Path: "/unread-count", Handler: c.unreadCount, Middlewares: jwt},
		{Method: fiber.MethodPut, Path: "/read-all", Handler: c.readAll, Middlewares: jwt},
		{Method: fiber.MethodPut, Path: "/:id/read", Handler: c.read, Middlewares: jwt},
		{Method: fiber.MethodPost, Path: "", Handler: c.send, Middlewares: m.Use("jwt", permission.GuardKey(permission.SendNotification))},
	}
}

// list GET /api/notifications?page=&pageSize=&unread=true
func (c *Controller) list(ctx *fiber.Ctx) error {
	p := dal.PaginationFromQuery(ctx)
	result, err := c.repo.ListByUser(ctx.UserContext(), middleware.GetUserID(ctx), ctx.QueryBool("unread", false), p)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.SuccessPage(ctx, result.List, result.Total, result.Page, result.PageSize)
}

func (c *Controller) unreadCount(ctx *fiber.Ctx) error {
	n, err := c.repo.UnreadCount(ctx.UserContext(), middleware.GetUserID(ctx))
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, fiber.Map{"count": n})
}

func (c *Controller) read(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	found, err := c.repo.MarkRead(ctx.UserContext(), id, middleware.GetUserID(ctx), time.Now())
	if err != nil {
		return response.FromError(ctx, err)
	}
	if !found {
		return response.FromError(ctx, errors.NotFound("通知"))
	}
	return response.Success(ctx, nil)
}

func (c *Controller) readAll(ctx *fiber.Ctx) error {
	n, err := c.repo.MarkAllRead(ctx.UserContext(), middleware.GetUserID(ctx), time.Now())
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, fiber.Map{"updated": n})
}

func (c *Controller) send(ctx *fiber.Ctx) error {
	var req SendRequest
	if err := validate.Body(ctx, &req); err != nil {
		return response.FromError(ctx, err)
	}
	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	n, err := c.dispatcher.Dispatch(ctx.UserContext(), req.UserID, req.Type, req.Title, req.Message, payload)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Created(ctx, n)
}
