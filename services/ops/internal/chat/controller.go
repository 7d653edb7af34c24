package chat

import (
	"github.com/gofiber/fiber/v2"
	"github.com/opshub/pkg/dal"
	"github.com/opshub/pkg/middleware"
	"github.com/opshub/pkg/response"
	"github.com/opshub/pkg/router"
	"github.com/opshub/pkg/validate"
)

// Controller 会话HTTP接口，与实时事件共用协调器
type Controller struct {
	coordinator *Coordinator
}

// NewController 创建会话控制器
func NewController(coordinator *Coordinator) *Controller {
	return &Controller{coordinator: coordinator}
}

// Prefix 返回路由前缀
func (c *Controller) Prefix() string {
	return "/api/conversations"
}

// Routes 返回路由配置
func (c *Controller) Routes(m router.Middlewares) []router.Route {
	jwt := m.Use("jwt")
	return []router.Route{
		{Method: fiber.MethodGet, Path: "", Handler: c.list, Middlewares: jwt},
		{Method: fiber.MethodPost, Path: "", Handler: c.create, Middlewares: jwt},
		{Method: fiber.MethodGet, Path: "/:id", Handler: c.get, Middlewares: jwt},
		{Method: fiber.MethodGet, Path: "/:id/messages", Handler: c.messages, Middlewares: jwt},
		{Method: fiber.MethodPost, Path: "/:id/messages", Handler: c.send, Middlewares: jwt},
		{Method: fiber.MethodPut, Path: "/:id/read", Handler: c.read, Middlewares: jwt},
		{Method: fiber.MethodPost, Path: "/:id/participants", Handler: c.addParticipant, Middlewares: jwt},
		{Method: fiber.MethodDelete, Path: "/:id/participants/:uid", Handler: c.removeParticipant, Middlewares: jwt},
		{Method: fiber.MethodPut, Path: "~/api/messages/:id", Handler: c.edit, Middlewares: jwt},
		{Method: fiber.MethodDelete, Path: "~/api/messages/:id", Handler: c.remove, Middlewares: jwt},
	}
}

func (c *Controller) list(ctx *fiber.Ctx) error {
	list, err := c.coordinator.ListConversations(ctx.UserContext(), middleware.GetUserID(ctx))
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, list)
}

func (c *Controller) create(ctx *fiber.Ctx) error {
	var req CreateConversationRequest
	if err := validate.Body(ctx, &req); err != nil {
		return response.FromError(ctx, err)
	}
	conv, err := c.coordinator.CreateConversation(ctx.UserContext(), middleware.GetUserID(ctx), &req)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Created(ctx, conv)
}

func (c *Controller) get(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	conv, err := c.coordinator.GetConversation(ctx.UserContext(), middleware.GetUserID(ctx), id)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, conv)
}

// messages GET /:id/messages?beforeId=&limit=
func (c *Controller) messages(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	list, err := c.coordinator.ListMessages(ctx.UserContext(), middleware.GetUserID(ctx), id,
		int64(ctx.QueryInt("beforeId", 0)), ctx.QueryInt("limit", defaultMessageLimit))
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, list)
}

func (c *Controller) send(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	var req SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return response.BadRequest(ctx, "请求参数格式错误")
	}
	req.ConversationID = id
	msg, err := c.coordinator.SendMessage(ctx.UserContext(), middleware.GetUserID(ctx), &req)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Created(ctx, msg)
}

func (c *Controller) edit(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	var req EditMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return response.BadRequest(ctx, "请求参数格式错误")
	}
	req.MessageID = id
	msg, err := c.coordinator.EditMessage(ctx.UserContext(), middleware.GetUserID(ctx), &req)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, msg)
}

func (c *Controller) remove(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	msg, err := c.coordinator.DeleteMessage(ctx.UserContext(), middleware.GetUserID(ctx), id)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, msg)
}

func (c *Controller) read(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	receipt, err := c.coordinator.MarkRead(ctx.UserContext(), middleware.GetUserID(ctx), id)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, receipt)
}

func (c *Controller) addParticipant(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	var req AddParticipantRequest
	if err := validate.Body(ctx, &req); err != nil {
		return response.FromError(ctx, err)
	}
	p, err := c.coordinator.AddParticipant(ctx.UserContext(), middleware.GetUserID(ctx), id, &req)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Created(ctx, p)
}

func (c *Controller) removeParticipant(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	uid, err := dal.ParamID(ctx, "uid")
	if err != nil {
		return response.FromError(ctx, err)
	}
	if err := c.coordinator.RemoveParticipant(ctx.UserContext(), middleware.GetUserID(ctx), id, uid); err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, nil)
}
