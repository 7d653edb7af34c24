package permission

import (
	"context"

	"gorm.io/gorm"
)

// Loader 从存储加载用户的权限名称
type Loader interface {
	LoadPermissionNames(ctx context.Context, userID int64) ([]string, error)
}

// Repository 基于 gorm 的权限加载
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建权限仓储
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// LoadPermissionNames 用户 -> 角色 -> 授权 -> 权限
func (r *Repository) LoadPermissionNames(ctx context.Context, userID int64) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Table("sys_user_role AS ur").
		Joins("JOIN sys_role_permission AS rp ON rp.role_id = ur.role_id").
		Joins("JOIN sys_permission AS p ON p.id = rp.permission_id").
		Where("ur.user_id = ?", userID).
		Distinct().
		Pluck("p.name", &names).Error
	return names, err
}
