package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// 错误码
const (
	CodeUnauthorized = http.StatusUnauthorized
	CodeForbidden    = http.StatusForbidden
	CodeNotFound     = http.StatusNotFound
	CodeConflict     = http.StatusConflict
	CodeValidation   = http.StatusUnprocessableEntity
	CodeBadRequest   = http.StatusBadRequest
	CodeInternal     = http.StatusInternalServerError
)

// 预定义错误
var (
	ErrUnauthorized      = New(CodeUnauthorized, "未授权")
	ErrForbidden         = New(CodeForbidden, "禁止访问")
	ErrNotParticipant    = New(CodeForbidden, "不是会话成员")
	ErrInvalidCredential = New(CodeUnauthorized, "用户名或密码错误")
	ErrTokenMissing      = New(CodeUnauthorized, "未提供认证令牌")
	ErrTokenInvalid      = New(CodeUnauthorized, "无效的认证令牌")
	ErrEmptyMessage      = New(CodeValidation, "消息内容和附件不能同时为空")
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 解包错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 同码即视为同类错误
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// New 创建新错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(err error, code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is 检查是否为指定错误
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 类型转换错误
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// GetCode 获取错误码，非应用错误视为内部错误
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func hasCode(err error, code int) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsUnauthorized 是否为未授权错误
func IsUnauthorized(err error) bool { return hasCode(err, CodeUnauthorized) }

// IsForbidden 是否为禁止访问错误
func IsForbidden(err error) bool { return hasCode(err, CodeForbidden) }

// IsNotFound 是否为未找到错误
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsConflict 是否为冲突错误
func IsConflict(err error) bool { return hasCode(err, CodeConflict) }

// IsValidation 是否为验证错误
func IsValidation(err error) bool { return hasCode(err, CodeValidation) }

// NotFound 创建未找到错误
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s不存在", resource),
	}
}

// BadRequest 创建请求错误
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
	}
}

// Unauthorized 创建未授权错误
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "未授权"
	}
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

// Forbidden 创建禁止访问错误
func Forbidden(message string) *AppError {
	if message == "" {
		message = "禁止访问"
	}
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
	}
}

// Validation 创建验证错误
func Validation(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

// Conflict 创建冲突错误
func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
	}
}

// Duplicate 创建重复错误
func Duplicate(field string) *AppError {
	return Conflict(fmt.Sprintf("%s已存在", field))
}

// Internal 创建内部错误
func Internal(message string) *AppError {
	if message == "" {
		message = "服务器内部错误"
	}
	return &AppError{
		Code:    CodeInternal,
		Message: message,
	}
}
