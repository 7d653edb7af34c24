package project

import (
	"github.com/gofiber/fiber/v2"
	"github.com/opshub/pkg/dal"
	"github.com/opshub/pkg/response"
	"github.com/opshub/pkg/router"
	"github.com/opshub/pkg/validate"
	"github.com/opshub/services/ops/internal/permission"
)

// Controller 项目控制器
type Controller struct {
	svc *Service
}

// NewController 创建项目控制器
func NewController(svc *Service) *Controller {
	return &Controller{svc: svc}
}

// Prefix 返回路由前缀
func (c *Controller) Prefix() string {
	return "/api/projects"
}

// Routes 返回路由配置
func (c *Controller) Routes(m router.Middlewares) []router.Route {
	read := m.Use("jwt", permission.GuardKey(permission.ReadProject))
	manage := m.Use("jwt", permission.GuardKey(permission.ManageProject))
	assign := m.Use("jwt", permission.GuardKey(permission.AssignMilestone))
	return []router.Route{
		{Method: fiber.MethodPost, Path: "", Handler: c.create, Middlewares: manage},
		{Method: fiber.MethodGet, Path: "/:id", Handler: c.get, Middlewares: read},
		{Method: fiber.MethodPost, Path: "/:id/milestones", Handler: c.createMilestone, Middlewares: manage},
		{Method: fiber.MethodPost, Path: "/:id/milestones/:mid/assignees", Handler: c.assign, Middlewares: assign},
		{Method: fiber.MethodDelete, Path: "/:id/milestones/:mid/assignees/:uid", Handler: c.unassign, Middlewares: assign},
	}
}

func (c *Controller) create(ctx *fiber.Ctx) error {
	var req CreateRequest
	if err := validate.Body(ctx, &req); err != nil {
		return response.FromError(ctx, err)
	}
	p, err := c.svc.Create(ctx.UserContext(), &req)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Created(ctx, p)
}

func (c *Controller) get(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	detail, err := c.svc.Get(ctx.UserContext(), id)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, detail)
}

func (c *Controller) createMilestone(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	var req CreateMilestoneRequest
	if err := validate.Body(ctx, &req); err != nil {
		return response.FromError(ctx, err)
	}
	m, err := c.svc.CreateMilestone(ctx.UserContext(), id, &req)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Created(ctx, m)
}

func (c *Controller) assign(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	mid, err := dal.ParamID(ctx, "mid")
	if err != nil {
		return response.FromError(ctx, err)
	}
	var req AssignRequest
	if err := validate.Body(ctx, &req); err != nil {
		return response.FromError(ctx, err)
	}
	result, err := c.svc.Assign(ctx.UserContext(), id, mid, req.UserID)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, result)
}

func (c *Controller) unassign(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	mid, err := dal.ParamID(ctx, "mid")
	if err != nil {
		return response.FromError(ctx, err)
	}
	uid, err := dal.ParamID(ctx, "uid")
	if err != nil {
		return response.FromError(ctx, err)
	}
	if err := c.svc.Unassign(ctx.UserContext(), id, mid, uid); err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, nil)
}
