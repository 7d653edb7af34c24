package response

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/opshub/pkg/errors"
	"github.com/opshub/pkg/logger"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PageResponse 分页响应结构
type PageResponse struct {
	Code     int         `json:"code"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data,omitempty"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

const (
	CodeSuccess = 0
	MsgSuccess  = "success"
)

// Success 成功响应
func Success(c *fiber.Ctx, data interface{}) error {
	return c.Status(http.StatusOK).JSON(Response{
		Code:    CodeSuccess,
		Message: MsgSuccess,
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(http.StatusCreated).JSON(Response{
		Code:    CodeSuccess,
		Message: MsgSuccess,
		Data:    data,
	})
}

// SuccessPage 分页成功响应
func SuccessPage(c *fiber.Ctx, data interface{}, total int64, page, pageSize int) error {
	return c.Status(http.StatusOK).JSON(PageResponse{
		Code:     CodeSuccess,
		Message:  MsgSuccess,
		Data:     data,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// Error 错误响应，HTTP状态码与业务码一致
func Error(c *fiber.Ctx, code int, message string) error {
	status := code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	return c.Status(status).JSON(Response{
		Code:    code,
		Message: message,
	})
}

// FromError 将错误映射为响应，内部错误不向客户端暴露细节
func FromError(c *fiber.Ctx, err error) error {
	code := errors.GetCode(err)
	if code >= http.StatusInternalServerError {
		logger.Error("request failed",
			logger.String("method", c.Method()),
			logger.String("path", c.Path()),
			logger.Err(err),
		)
		return Error(c, code, "服务器内部错误")
	}
	return Error(c, code, errors.GetMessage(err))
}

// BadRequest 请求错误
func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, http.StatusBadRequest, message)
}

// Unauthorized 未授权
func Unauthorized(c *fiber.Ctx, message string) error {
	if message == "" {
		message = "unauthorized"
	}
	return Error(c, http.StatusUnauthorized, message)
}

// Forbidden 禁止访问
func Forbidden(c *fiber.Ctx, message string) error {
	if message == "" {
		message = "forbidden"
	}
	return Error(c, http.StatusForbidden, message)
}

// ValidateError 验证错误
func ValidateError(c *fiber.Ctx, message string) error {
	return Error(c, http.StatusUnprocessableEntity, message)
}
