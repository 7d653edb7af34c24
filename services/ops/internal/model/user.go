package model

import (
	"time"

	"github.com/opshub/pkg/dal"
)

const (
	UserStatusDisabled int8 = 0
	UserStatusActive   int8 = 1
)

// User 用户模型
type User struct {
	dal.SoftDeleteModel
	Username string `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Password string `gorm:"size:255;not null" json:"-"`
	Nickname string `gorm:"size:50" json:"nickname"`
	Email    string `gorm:"size:100" json:"email"`
	Avatar   string `gorm:"size:255" json:"avatar"`
	Status   int8   `gorm:"default:1" json:"status"` // 1:正常 0:禁用
}

// TableName 表名
func (User) TableName() string {
	return "sys_user"
}

const (
	LoginFailed  int8 = 0
	LoginSuccess int8 = 1
)

// LoginLog 登录日志
type LoginLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"index" json:"userId"`
	Username  string    `gorm:"size:50;index" json:"username"`
	IP        string    `gorm:"size:50" json:"ip"`
	UserAgent string    `gorm:"size:255" json:"userAgent"`
	Status    int8      `json:"status"` // 1:成功 0:失败
	Message   string    `gorm:"size:255" json:"message"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

// TableName 表名
func (LoginLog) TableName() string {
	return "sys_login_log"
}
