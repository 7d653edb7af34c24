package permission

import (
	"github.com/gofiber/fiber/v2"
	"github.com/opshub/pkg/middleware"
	"github.com/opshub/pkg/router"
)

// GuardKey 权限中间件在 router.Middlewares 中的名称
func GuardKey(n Name) string {
	return "perm:" + string(n)
}

// Guards 为目录中每个权限生成 RequireAny 中间件，并附带 jwt
func Guards(jwt fiber.Handler, checker middleware.PermissionChecker[Name]) router.Middlewares {
	m := router.Middlewares{"jwt": jwt}
	for _, def := range Catalog() {
		m[GuardKey(def.Name)] = middleware.RequireAny(checker, def.Name)
	}
	return m
}
