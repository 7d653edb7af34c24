package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/opshub/pkg/errors"
	"github.com/opshub/pkg/logger"
	"github.com/opshub/pkg/response"
	"go.uber.org/zap"
)

// PermissionChecker 权限判定
type PermissionChecker[N ~string] interface {
	HasAny(ctx context.Context, userID int64, names ...N) (bool, error)
	HasAll(ctx context.Context, userID int64, names ...N) (bool, error)
}

// RequireAny 要求拥有任一权限
func RequireAny[N ~string](checker PermissionChecker[N], names ...N) fiber.Handler {
	return requirePermissions(checker.HasAny, names)
}

// RequireAll 要求拥有全部权限
func RequireAll[N ~string](checker PermissionChecker[N], names ...N) fiber.Handler {
	return requirePermissions(checker.HasAll, names)
}

func requirePermissions[N ~string](check func(context.Context, int64, ...N) (bool, error), names []N) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == 0 {
			return response.FromError(c, errors.ErrUnauthorized)
		}

		ok, err := check(c.UserContext(), userID, names...)
		if err != nil {
			logger.Error("permission check failed", zap.Int64("userId", userID), zap.Error(err))
			return response.FromError(c, err)
		}
		if !ok {
			return response.FromError(c, errors.Forbidden("没有访问权限"))
		}
		return c.Next()
	}
}
