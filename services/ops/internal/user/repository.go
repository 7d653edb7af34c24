package user

import (
	"context"

	"github.com/opshub/pkg/dal"
	"github.com/opshub/services/ops/internal/model"
	"gorm.io/gorm"
)

// Repository 用户仓储接口
type Repository interface {
	dal.Repository[model.User]
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	List(ctx context.Context, keyword string, p *dal.Pagination) (*dal.PagedResult[model.User], error)
	UpdateStatus(ctx context.Context, id int64, status int8) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

type repository struct {
	*dal.BaseRepository[model.User]
}

// NewRepository 创建用户仓储
func NewRepository(db *gorm.DB) Repository {
	return &repository{BaseRepository: dal.NewBaseRepository[model.User](db)}
}

// FindByUsername 根据用户名查找
func (r *repository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.FindOne(ctx, map[string]interface{}{"username": username})
}

// List 分页查询，keyword 匹配用户名或昵称
func (r *repository) List(ctx context.Context, keyword string, p *dal.Pagination) (*dal.PagedResult[model.User], error) {
	opts := []dal.QueryOption{dal.WithOrder("id")}
	if keyword != "" {
		like := "%" + keyword + "%"
		opts = append(opts, dal.WithWhere("username LIKE ? OR nickname LIKE ?", like, like))
	}
	return r.FindPaged(ctx, nil, p, opts...)
}

// UpdateStatus 更新状态
func (r *repository) UpdateStatus(ctx context.Context, id int64, status int8) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{"status": status})
}

// UpdatePassword 更新密码
func (r *repository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{"password": hash})
}
