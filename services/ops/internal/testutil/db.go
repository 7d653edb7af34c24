// Package testutil 测试辅助
package testutil

import (
	"testing"

	"github.com/opshub/pkg/config"
	"github.com/opshub/pkg/database"
	"github.com/opshub/services/ops/internal/model"
	"gorm.io/gorm"
)

// NewDB 创建已迁移的内存 SQLite 数据库
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{Driver: "sqlite", Database: ":memory:", LogLevel: "silent"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// MustCreate 插入记录，失败即终止测试
func MustCreate(t testing.TB, db *gorm.DB, values ...interface{}) {
	t.Helper()
	for _, v := range values {
		if err := db.Create(v).Error; err != nil {
			t.Fatalf("create %T: %v", v, err)
		}
	}
}
