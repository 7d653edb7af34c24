package role

import (
	"github.com/gofiber/fiber/v2"
	"github.com/opshub/pkg/dal"
	"github.com/opshub/pkg/middleware"
	"github.com/opshub/pkg/response"
	"github.com/opshub/pkg/router"
	"github.com/opshub/pkg/validate"
	"github.com/opshub/services/ops/internal/permission"
)

// Controller 角色、权限与用户角色接口
type Controller struct {
	svc *Service
}

// NewController 创建角色控制器
func NewController(svc *Service) *Controller {
	return &Controller{svc: svc}
}

// Prefix 返回路由前缀
func (c *Controller) Prefix() string {
	return "/api/roles"
}

// Routes 返回路由配置
func (c *Controller) Routes(m router.Middlewares) []router.Route {
	roles := m.Use("jwt", permission.GuardKey(permission.ManageRoles))
	perms := m.Use("jwt", permission.GuardKey(permission.ManagePermissions))
	users := m.Use("jwt", permission.GuardKey(permission.ManageUsers))
	return []router.Route{
		{Method: fiber.MethodGet, Path: "", Handler: c.listRoles, Middlewares: roles},
		{Method: fiber.MethodPost, Path: "", Handler: c.createRole, Middlewares: roles},
		{Method: fiber.MethodGet, Path: "/:id", Handler: c.getRole, Middlewares: roles},
		{Method: fiber.MethodPut, Path: "/:id", Handler: c.updateRole, Middlewares: roles},
		{Method: fiber.MethodDelete, Path: "/:id", Handler: c.deleteRole, Middlewares: roles},
		{Method: fiber.MethodPut, Path: "/:id/permissions", Handler: c.setPermissions, Middlewares: roles},
		{Method: fiber.MethodPost, Path: "/:id/permissions", Handler: c.grantPermissions, Middlewares: roles},

		{Method: fiber.MethodGet, Path: "~/api/permissions", Handler: c.listPermissions, Middlewares: perms},
		{Method: fiber.MethodPost, Path: "~/api/permissions", Handler: c.createPermission, Middlewares: perms},
		{Method: fiber.MethodDelete, Path: "~/api/permissions/:id", Handler: c.deletePermission, Middlewares: perms},

		{Method: fiber.MethodGet, Path: "~/api/users/:id/roles", Handler: c.userRoles, Middlewares: users},
		{Method: fiber.MethodPost, Path: "~/api/users/:id/roles", Handler: c.assign, Middlewares: users},
		{Method: fiber.MethodDelete, Path: "~/api/users/:id/roles/:rid", Handler: c.revoke, Middlewares: users},
		{Method: fiber.MethodGet, Path: "~/api/users/:id/permissions", Handler: c.userPermissions, Middlewares: users},
		{Method: fiber.MethodGet, Path: "~/api/me/permissions", Handler: c.myPermissions, Middlewares: m.Use("jwt")},
	}
}

func (c *Controller) listRoles(ctx *fiber.Ctx) error {
	list, err := c.svc.ListRoles(ctx.UserContext())
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, list)
}

func (c *Controller) createRole(ctx *fiber.Ctx) error {
	var req CreateRoleRequest
	if err := validate.Body(ctx, &req); err != nil {
		return response.FromError(ctx, err)
	}
	v, err := c.svc.CreateRole(ctx.UserContext(), &req)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Created(ctx, v)
}

func (c *Controller) getRole(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	v, err := c.svc.GetRole(ctx.UserContext(), id)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, v)
}

func (c *Controller) updateRole(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	var req UpdateRoleRequest
	if err := validate.Body(ctx, &req); err != nil {
		return response.FromError(ctx, err)
	}
	v, err := c.svc.UpdateRole(ctx.UserContext(), id, &req)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, v)
}

func (c *Controller) deleteRole(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	if err := c.svc.DeleteRole(ctx.UserContext(), id); err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, nil)
}

func (c *Controller) setPermissions(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	var req PermissionsRequest
	if err := validate.Body(ctx, &req); err != nil {
		return response.FromError(ctx, err)
	}
	v, err := c.svc.SetRolePermissions(ctx.UserContext(), id, req.Permissions)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, v)
}

func (c *Controller) grantPermissions(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	var req PermissionsRequest
	if err := validate.Body(ctx, &req); err != nil {
		return response.FromError(ctx, err)
	}
	v, err := c.svc.GrantPermissions(ctx.UserContext(), id, req.Permissions)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, v)
}

func (c *Controller) listPermissions(ctx *fiber.Ctx) error {
	list, err := c.svc.ListPermissions(ctx.UserContext())
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, list)
}

func (c *Controller) createPermission(ctx *fiber.Ctx) error {
	var req CreatePermissionRequest
	if err := validate.Body(ctx, &req); err != nil {
		return response.FromError(ctx, err)
	}
	p, err := c.svc.CreatePermission(ctx.UserContext(), &req)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Created(ctx, p)
}

func (c *Controller) deletePermission(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	if err := c.svc.DeletePermission(ctx.UserContext(), id); err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, nil)
}

func (c *Controller) userRoles(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	roles, err := c.svc.UserRoles(ctx.UserContext(), id)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, roles)
}

func (c *Controller) assign(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	var req AssignRequest
	if err := validate.Body(ctx, &req); err != nil {
		return response.FromError(ctx, err)
	}
	if err := c.svc.AssignRole(ctx.UserContext(), id, req.RoleID); err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, nil)
}

func (c *Controller) revoke(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	rid, err := dal.ParamID(ctx, "rid")
	if err != nil {
		return response.FromError(ctx, err)
	}
	if err := c.svc.RevokeRole(ctx.UserContext(), id, rid); err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, nil)
}

func (c *Controller) userPermissions(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	eff, err := c.svc.Effective(ctx.UserContext(), id)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, eff)
}

func (c *Controller) myPermissions(ctx *fiber.Ctx) error {
	eff, err := c.svc.Effective(ctx.UserContext(), middleware.GetUserID(ctx))
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, eff)
}
