package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/opshub/pkg/auth"
	"github.com/opshub/pkg/errors"
	"github.com/opshub/pkg/logger"
	"github.com/opshub/pkg/response"
	"go.uber.org/zap"
)

const (
	// TokenCookie 访问令牌 Cookie 名
	TokenCookie = "access_token"

	localUserID    = "userId"
	localUsername  = "username"
	localRequestID = "requestId"
)

// TokenFromRequest 依次从 Authorization 头、access_token Cookie、token 参数读取令牌
func TokenFromRequest(c *fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return strings.TrimSpace(h)
	}
	if v := c.Cookies(TokenCookie); v != "" {
		return v
	}
	return c.Query("token")
}

// Authenticate 校验请求携带的令牌
func Authenticate(c *fiber.Ctx, jwtManager *auth.JWTManager) (*auth.Claims, error) {
	token := TokenFromRequest(c)
	if token == "" {
		return nil, errors.ErrTokenMissing
	}
	claims, err := jwtManager.ParseToken(token)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnauthorized, errors.ErrTokenInvalid.Message)
	}
	return claims, nil
}

// JWTAuth JWT认证中间件
func JWTAuth(jwtManager *auth.JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := Authenticate(c, jwtManager)
		if err != nil {
			return response.FromError(c, err)
		}

		c.Locals(localUserID, claims.UserID)
		c.Locals(localUsername, claims.Username)
		return c.Next()
	}
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *fiber.Ctx) int64 {
	if id, ok := c.Locals(localUserID).(int64); ok {
		return id
	}
	return 0
}

// GetUsername 从上下文获取用户名
func GetUsername(c *fiber.Ctx) string {
	if name, ok := c.Locals(localUsername).(string); ok {
		return name
	}
	return ""
}

// Recovery 恢复中间件
func Recovery() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("error", r),
					zap.String("path", c.Path()),
					zap.String("method", c.Method()),
				)
				err = response.Error(c, errors.CodeInternal, "服务器内部错误")
			}
		}()
		return c.Next()
	}
}

// RequestID 请求ID中间件
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals(localRequestID, requestID)
		c.Set(fiber.HeaderXRequestID, requestID)
		return c.Next()
	}
}

// AccessLog 访问日志
func AccessLog(skipPaths ...string) fiber.Handler {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return func(c *fiber.Ctx) error {
		if _, ok := skip[c.Path()]; ok {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		logger.Info("http request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.Int64("userId", GetUserID(c)),
			zap.Any("requestId", c.Locals(localRequestID)),
		)
		return err
	}
}

// Cors 跨域中间件
func Cors() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if origin := c.Get(fiber.HeaderOrigin); origin != "" {
			c.Set("Access-Control-Allow-Origin", origin)
			c.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			c.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
			c.Set("Access-Control-Allow-Credentials", "true")
		}
		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}

// ErrorHandler fiber 全局错误处理
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return response.Error(c, fe.Code, fe.Message)
	}
	return response.FromError(c, err)
}
