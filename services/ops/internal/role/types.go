package role

import "github.com/opshub/services/ops/internal/model"

// AdminRole 内置管理员角色，拥有目录中全部权限
const AdminRole = "ADMIN"

// 通知类型
const (
	NotificationRoleAssigned = "role.assigned"
	NotificationRoleRevoked  = "role.revoked"
)

// CreateRoleRequest 创建角色请求
type CreateRoleRequest struct {
	Name        string   `json:"name" validate:"required,max=50"`
	Description string   `json:"description" validate:"max=255"`
	Permissions []string `json:"permissions"`
}

// UpdateRoleRequest 更新角色请求
type UpdateRoleRequest struct {
	Name        string `json:"name" validate:"required,max=50"`
	Description string `json:"description" validate:"max=255"`
}

// PermissionsRequest 角色授权请求
type PermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// CreatePermissionRequest 创建权限请求
type CreatePermissionRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Group       string `json:"group" validate:"max=50"`
	Description string `json:"description" validate:"max=255"`
}

// AssignRequest 分配角色请求
type AssignRequest struct {
	RoleID int64 `json:"roleId" validate:"required,gt=0"`
}

// View 角色及其权限名称
type View struct {
	model.Role
	Permissions []string `json:"permissions"`
}

// EffectivePermissions 用户有效权限
type EffectivePermissions struct {
	UserID      int64    `json:"userId"`
	Permissions []string `json:"permissions"`
}
