package model

import (
	"encoding/json"
	"time"

	"github.com/opshub/pkg/dal"
)

// Notification 通知，推送失败不影响记录
type Notification struct {
	dal.Model
	UserID  int64           `gorm:"not null;index:idx_user_read" json:"userId"`
	Type    string          `gorm:"size:50;not null" json:"type"`
	Title   string          `gorm:"size:200;not null" json:"title"`
	Message string          `gorm:"type:text" json:"message"`
	Payload json.RawMessage `gorm:"type:text;serializer:json" json:"payload,omitempty"`
	IsRead  bool            `gorm:"not null;default:false;index:idx_user_read" json:"isRead"`
	ReadAt  *time.Time      `json:"readAt,omitempty"`
}

// TableName 表名
func (Notification) TableName() string {
	return "sys_notification"
}
