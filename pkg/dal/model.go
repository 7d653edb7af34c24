package dal

import (
	"time"

	"gorm.io/gorm"
)

// Model 基础模型
type Model struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// SoftDeleteModel 带软删除的基础模型
type SoftDeleteModel struct {
	Model
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// QueryOption 查询选项
type QueryOption func(*gorm.DB) *gorm.DB

func WithPreload(query string, args ...any) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Preload(query, args...) }
}

func WithOrder(order string) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Order(order) }
}

func WithWhere(query string, args ...any) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Where(query, args...) }
}
