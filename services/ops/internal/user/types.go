package user

import (
	"github.com/opshub/pkg/auth"
	"github.com/opshub/services/ops/internal/model"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token *auth.TokenInfo `json:"token"`
	User  *model.User     `json:"user"`
}

// ClientInfo 登录请求来源
type ClientInfo struct {
	IP        string
	UserAgent string
}

// CreateRequest 创建用户请求
type CreateRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Nickname string `json:"nickname" validate:"max=50"`
	Email    string `json:"email" validate:"omitempty,email,max=100"`
}

// StatusRequest 修改状态请求
type StatusRequest struct {
	Status *int8 `json:"status" validate:"required,oneof=0 1"`
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
}
