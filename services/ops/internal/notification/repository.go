package notification

import (
	"context"
	"time"

	"github.com/opshub/pkg/dal"
	"github.com/opshub/services/ops/internal/model"
	"gorm.io/gorm"
)

// Repository 通知仓储接口
type Repository interface {
	dal.Repository[model.Notification]
	ListByUser(ctx context.Context, userID int64, unreadOnly bool, p *dal.Pagination) (*dal.PagedResult[model.Notification], error)
	UnreadCount(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, id, userID int64, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error)
}

type repository struct {
	*dal.BaseRepository[model.Notification]
}

// NewRepository 创建通知仓储
func NewRepository(db *gorm.DB) Repository {
	return &repository{BaseRepository: dal.NewBaseRepository[model.Notification](db)}
}

// ListByUser 最新的在前
func (r *repository) ListByUser(ctx context.Context, userID int64, unreadOnly bool, p *dal.Pagination) (*dal.PagedResult[model.Notification], error) {
	conditions := map[string]interface{}{"user_id": userID}
	if unreadOnly {
		conditions["is_read"] = false
	}
	return r.FindPaged(ctx, conditions, p, dal.WithOrder("id DESC"))
}

func (r *repository) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	return r.Count(ctx, map[string]interface{}{"user_id": userID, "is_read": false})
}

// MarkRead 只能标记自己的通知，返回是否找到
func (r *repository) MarkRead(ctx context.Context, id, userID int64, at time.Time) (bool, error) {
	exists, err := r.Exists(ctx, map[string]interface{}{"id": id, "user_id": userID})
	if err != nil || !exists {
		return false, err
	}
	err = r.DB().WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND user_id = ? AND is_read = ?", id, userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at}).Error
	return true, err
}

// MarkAllRead 返回本次标记的数量
func (r *repository) MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	res := r.DB().WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	return res.RowsAffected, res.Error
}
