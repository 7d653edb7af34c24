package model

import (
	"time"

	"github.com/opshub/pkg/dal"
)

// Role 角色模型，存在用户分配时不可删除
type Role struct {
	dal.Model
	Name        string `gorm:"size:50;uniqueIndex;not null" json:"name"`
	Description string `gorm:"size:255" json:"description"`
}

// TableName 表名
func (Role) TableName() string {
	return "sys_role"
}

// Permission 权限模型，名称取自权限目录
type Permission struct {
	dal.Model
	Name        string `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Group       string `gorm:"column:group_name;size:50" json:"group"`
	Description string `gorm:"size:255" json:"description"`
}

// TableName 表名
func (Permission) TableName() string {
	return "sys_permission"
}

// RoleGrant 角色权限关联
type RoleGrant struct {
	RoleID       int64     `gorm:"primaryKey;autoIncrement:false" json:"roleId"`
	PermissionID int64     `gorm:"primaryKey;autoIncrement:false;index" json:"permissionId"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 表名
func (RoleGrant) TableName() string {
	return "sys_role_permission"
}

// UserRole 用户角色分配
type UserRole struct {
	UserID    int64     `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	RoleID    int64     `gorm:"primaryKey;autoIncrement:false;index" json:"roleId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 表名
func (UserRole) TableName() string {
	return "sys_user_role"
}
