package user

import (
	"context"

	"github.com/opshub/pkg/dal"
	"github.com/opshub/services/ops/internal/model"
	"gorm.io/gorm"
)

// LoginLogRepository 登录日志仓储接口
type LoginLogRepository interface {
	Create(ctx context.Context, log *model.LoginLog) error
	List(ctx context.Context, username string, status *int8, p *dal.Pagination) (*dal.PagedResult[model.LoginLog], error)
}

type loginLogRepository struct {
	db *gorm.DB
}

// NewLoginLogRepository 创建登录日志仓储
func NewLoginLogRepository(db *gorm.DB) LoginLogRepository {
	return &loginLogRepository{db: db}
}

func (r *loginLogRepository) Create(ctx context.Context, log *model.LoginLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// List 按时间倒序分页
func (r *loginLogRepository) List(ctx context.Context, username string, status *int8, p *dal.Pagination) (*dal.PagedResult[model.LoginLog], error) {
	db := r.db.WithContext(ctx).Model(&model.LoginLog{})
	if username != "" {
		db = db.Where("username = ?", username)
	}
	if status != nil {
		db = db.Where("status = ?", *status)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, err
	}
	var list []model.LoginLog
	if err := db.Order("id DESC").Offset(p.Offset()).Limit(p.PageSize).Find(&list).Error; err != nil {
		return nil, err
	}
	return dal.NewPagedResult(list, total, p), nil
}
