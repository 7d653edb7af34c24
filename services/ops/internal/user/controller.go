package user

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/opshub/pkg/auth"
	"github.com/opshub/pkg/dal"
	"github.com/opshub/pkg/errors"
	"github.com/opshub/pkg/middleware"
	"github.com/opshub/pkg/response"
	"github.com/opshub/pkg/router"
	"github.com/opshub/pkg/validate"
	"github.com/opshub/services/ops/internal/permission"
)

// Controller 登录与用户管理接口
type Controller struct {
	svc *Service
}

// NewController 创建用户控制器
func NewController(svc *Service) *Controller {
	return &Controller{svc: svc}
}

// Prefix 返回路由前缀
func (c *Controller) Prefix() string {
	return "/api/auth"
}

// Routes 返回路由配置
func (c *Controller) Routes(m router.Middlewares) []router.Route {
	jwt := m.Use("jwt")
	manage := m.Use("jwt", permission.GuardKey(permission.ManageUsers))
	return []router.Route{
		{Method: fiber.MethodPost, Path: "/login", Handler: c.login},
		{Method: fiber.MethodPost, Path: "/refresh", Handler: c.refresh},
		{Method: fiber.MethodPost, Path: "/logout", Handler: c.logout},

		{Method: fiber.MethodGet, Path: "~/api/me", Handler: c.me, Middlewares: jwt},
		{Method: fiber.MethodPut, Path: "~/api/me/password", Handler: c.changePassword, Middlewares: jwt},

		{Method: fiber.MethodGet, Path: "~/api/users", Handler: c.list, Middlewares: manage},
		{Method: fiber.MethodPost, Path: "~/api/users", Handler: c.create, Middlewares: manage},
		{Method: fiber.MethodPut, Path: "~/api/users/:id/status", Handler: c.setStatus, Middlewares: manage},
		{Method: fiber.MethodGet, Path: "~/api/login-logs", Handler: c.loginLogs, Middlewares: manage},
	}
}

func (c *Controller) login(ctx *fiber.Ctx) error {
	var req LoginRequest
	if err := validate.Body(ctx, &req); err != nil {
		return response.FromError(ctx, err)
	}
	resp, err := c.svc.Login(ctx.UserContext(), &req, ClientInfo{IP: ctx.IP(), UserAgent: ctx.Get(fiber.HeaderUserAgent)})
	if err != nil {
		return response.FromError(ctx, err)
	}
	setTokenCookie(ctx, resp.Token)
	return response.Success(ctx, resp)
}

func (c *Controller) refresh(ctx *fiber.Ctx) error {
	token := middleware.TokenFromRequest(ctx)
	if token == "" {
		return response.FromError(ctx, errors.ErrTokenMissing)
	}
	info, err := c.svc.Refresh(ctx.UserContext(), token)
	if err != nil {
		return response.FromError(ctx, err)
	}
	setTokenCookie(ctx, info)
	return response.Success(ctx, info)
}

func (c *Controller) logout(ctx *fiber.Ctx) error {
	ctx.ClearCookie(middleware.TokenCookie)
	return response.Success(ctx, nil)
}

func (c *Controller) me(ctx *fiber.Ctx) error {
	u, err := c.svc.Me(ctx.UserContext(), middleware.GetUserID(ctx))
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, u)
}

func (c *Controller) changePassword(ctx *fiber.Ctx) error {
	var req ChangePasswordRequest
	if err := validate.Body(ctx, &req); err != nil {
		return response.FromError(ctx, err)
	}
	if err := c.svc.ChangePassword(ctx.UserContext(), middleware.GetUserID(ctx), &req); err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, nil)
}

func (c *Controller) list(ctx *fiber.Ctx) error {
	p := dal.PaginationFromQuery(ctx)
	result, err := c.svc.List(ctx.UserContext(), ctx.Query("keyword"), p)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.SuccessPage(ctx, result.List, result.Total, result.Page, result.PageSize)
}

func (c *Controller) create(ctx *fiber.Ctx) error {
	var req CreateRequest
	if err := validate.Body(ctx, &req); err != nil {
		return response.FromError(ctx, err)
	}
	u, err := c.svc.Create(ctx.UserContext(), &req)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Created(ctx, u)
}

func (c *Controller) setStatus(ctx *fiber.Ctx) error {
	id, err := dal.ParamID(ctx, "id")
	if err != nil {
		return response.FromError(ctx, err)
	}
	var req StatusRequest
	if err := validate.Body(ctx, &req); err != nil {
		return response.FromError(ctx, err)
	}
	if err := c.svc.SetStatus(ctx.UserContext(), id, *req.Status); err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, nil)
}

func (c *Controller) loginLogs(ctx *fiber.Ctx) error {
	var status *int8
	if v := ctx.Query("status"); v != "" {
		st := int8(ctx.QueryInt("status"))
		status = &st
	}
	p := dal.PaginationFromQuery(ctx)
	result, err := c.svc.LoginLogs(ctx.UserContext(), ctx.Query("username"), status, p)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.SuccessPage(ctx, result.List, result.Total, result.Page, result.PageSize)
}

func setTokenCookie(ctx *fiber.Ctx, info *auth.TokenInfo) {
	ctx.Cookie(&fiber.Cookie{
		Name:     middleware.TokenCookie,
		Value:    info.AccessToken,
		Path:     "/",
		Expires:  time.Now().Add(time.Duration(info.ExpiresIn) * time.Second),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
