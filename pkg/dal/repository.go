package dal

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Conds 等值条件，nil 或空表示不过滤
type Conds = map[string]interface{}

// Repository 通用仓储接口
type Repository[T any] interface {
	Create(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T) error
	UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error
	Delete(ctx context.Context, id int64) error
	FindByID(ctx context.Context, id int64, opts ...QueryOption) (*T, error)
	FindOne(ctx context.Context, conds Conds, opts ...QueryOption) (*T, error)
	FindAll(ctx context.Context, conds Conds, opts ...QueryOption) ([]T, error)
	FindPaged(ctx context.Context, conds Conds, pagination *Pagination, opts ...QueryOption) (*PagedResult[T], error)
	Count(ctx context.Context, conds Conds, opts ...QueryOption) (int64, error)
	Exists(ctx context.Context, conds Conds) (bool, error)
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	DB() *gorm.DB
}

// BaseRepository 基础仓储实现，T 为 gorm 模型
type BaseRepository[T any] struct {
	db *gorm.DB
}

// NewBaseRepository 创建基础仓储
func NewBaseRepository[T any](db *gorm.DB) *BaseRepository[T] {
	return &BaseRepository[T]{db: db}
}

// DB 获取数据库实例
func (r *BaseRepository[T]) DB() *gorm.DB {
	return r.db
}

// scope 绑定模型、条件与查询选项
func (r *BaseRepository[T]) scope(ctx context.Context, conds Conds, opts []QueryOption) *gorm.DB {
	db := r.db.WithContext(ctx).Model(new(T))
	if len(conds) > 0 {
		db = db.Where(conds)
	}
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}

// first 未找到时返回 nil, nil
func first[T any](db *gorm.DB) (*T, error) {
	entity := new(T)
	err := db.First(entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *BaseRepository[T]) Create(ctx context.Context, entity *T) error {
	return r.db.WithContext(ctx).Create(entity).Error
}

// Update 整行保存
func (r *BaseRepository[T]) Update(ctx context.Context, entity *T) error {
	return r.db.WithContext(ctx).Save(entity).Error
}

// UpdateFields 按主键更新指定列
func (r *BaseRepository[T]) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.scope(ctx, Conds{"id": id}, nil).Updates(fields).Error
}

func (r *BaseRepository[T]) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(new(T)).Error
}

// FindByID 根据ID查找，不存在时返回 nil, nil
func (r *BaseRepository[T]) FindByID(ctx context.Context, id int64, opts ...QueryOption) (*T, error) {
	return first[T](r.scope(ctx, Conds{"id": id}, opts))
}

// FindOne 不存在时返回 nil, nil
func (r *BaseRepository[T]) FindOne(ctx context.Context, conds Conds, opts ...QueryOption) (*T, error) {
	return first[T](r.scope(ctx, conds, opts))
}

func (r *BaseRepository[T]) FindAll(ctx context.Context, conds Conds, opts ...QueryOption) ([]T, error) {
	var list []T
	if err := r.scope(ctx, conds, opts).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// FindPaged 分页查询，查询选项同时作用于总数
func (r *BaseRepository[T]) FindPaged(ctx context.Context, conds Conds, pagination *Pagination, opts ...QueryOption) (*PagedResult[T], error) {
	var total int64
	if err := r.scope(ctx, conds, opts).Count(&total).Error; err != nil {
		return nil, err
	}
	var list []T
	if total > 0 {
		err := r.scope(ctx, conds, opts).
			Offset(pagination.Offset()).
			Limit(pagination.PageSize).
			Find(&list).Error
		if err != nil {
			return nil, err
		}
	}
	return NewPagedResult(list, total, pagination), nil
}

func (r *BaseRepository[T]) Count(ctx context.Context, conds Conds, opts ...QueryOption) (int64, error) {
	var n int64
	err := r.scope(ctx, conds, opts).Count(&n).Error
	return n, err
}

// Exists 只取一行判断
func (r *BaseRepository[T]) Exists(ctx context.Context, conds Conds) (bool, error) {
	var ids []int64
	if err := r.scope(ctx, conds, nil).Limit(1).Pluck("id", &ids).Error; err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// Transaction 执行事务
func (r *BaseRepository[T]) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
