package role

import (
	"context"
	stderrors "errors"

	"github.com/opshub/pkg/dal"
	"github.com/opshub/pkg/errors"
	"github.com/opshub/services/ops/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository 角色仓储接口
type Repository interface {
	dal.Repository[model.Role]
	FindByName(ctx context.Context, name string) (*model.Role, error)
	DeleteUnassigned(ctx context.Context, roleID int64) (assigned int64, err error)

	RolePermissions(ctx context.Context, roleID int64) ([]model.Permission, error)
	SetGrants(ctx context.Context, roleID int64, permissionIDs []int64) error
	AddGrants(ctx context.Context, roleID int64, permissionIDs []int64) error

	UserExists(ctx context.Context, userID int64) (bool, error)
	UserRoles(ctx context.Context, userID int64) ([]model.Role, error)
	Assign(ctx context.Context, userID, roleID int64) (bool, error)
	Revoke(ctx context.Context, userID, roleID int64) (bool, error)
}

var orderByName = dal.WithOrder("name")

type repository struct {
	*dal.BaseRepository[model.Role]
}

// NewRepository 创建角色仓储
func NewRepository(db *gorm.DB) Repository {
	return &repository{BaseRepository: dal.NewBaseRepository[model.Role](db)}
}

// FindByName 根据名称查找
func (r *repository) FindByName(ctx context.Context, name string) (*model.Role, error) {
	return r.FindOne(ctx, map[string]interface{}{"name": name})
}

// DeleteUnassigned 锁定角色行后删除角色及其授权，仍有用户拥有时不删除并返回拥有人数
func (r *repository) DeleteUnassigned(ctx context.Context, roleID int64) (int64, error) {
	var assigned int64
	err := r.Transaction(ctx, func(tx *gorm.DB) error {
		if err := lockRole(tx, roleID, "UPDATE"); err != nil {
			return err
		}
		if err := tx.Model(&model.UserRole{}).Where("role_id = ?", roleID).Count(&assigned).Error; err != nil {
			return err
		}
		if assigned > 0 {
			return nil
		}
		if err := tx.Where("role_id = ?", roleID).Delete(&model.RoleGrant{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", roleID).Delete(&model.Role{}).Error
	})
	return assigned, err
}

// lockRole sqlite 下忽略行锁，依赖库级写锁
func lockRole(tx *gorm.DB, roleID int64, strength string) error {
	var locked model.Role
	err := tx.Clauses(clause.Locking{Strength: strength}).Where("id = ?", roleID).First(&locked).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.NotFound("角色")
	}
	return err
}

// RolePermissions 角色已授予的权限
func (r *repository) RolePermissions(ctx context.Context, roleID int64) ([]model.Permission, error) {
	var list []model.Permission
	err := r.DB().WithContext(ctx).
		Joins("JOIN sys_role_permission AS rp ON rp.permission_id = sys_permission.id").
		Where("rp.role_id = ?", roleID).
		Order("sys_permission.name").
		Find(&list).Error
	return list, err
}

// SetGrants 覆盖角色授权
func (r *repository) SetGrants(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", roleID).Delete(&model.RoleGrant{}).Error; err != nil {
			return err
		}
		return insertGrants(tx, roleID, permissionIDs)
	})
}

// AddGrants 追加授权，已有的忽略
func (r *repository) AddGrants(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return insertGrants(r.DB().WithContext(ctx), roleID, permissionIDs)
}

func insertGrants(tx *gorm.DB, roleID int64, permissionIDs []int64) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	grants := make([]model.RoleGrant, len(permissionIDs))
	for i, id := range permissionIDs {
		grants[i] = model.RoleGrant{RoleID: roleID, PermissionID: id}
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&grants).Error
}

// UserExists 用户是否存在（不含已删除）
func (r *repository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := r.DB().WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Count(&count).Error
	return count > 0, err
}

// UserRoles 用户拥有的角色
func (r *repository) UserRoles(ctx context.Context, userID int64) ([]model.Role, error) {
	var list []model.Role
	err := r.DB().WithContext(ctx).
		Joins("JOIN sys_user_role AS ur ON ur.role_id = sys_role.id").
		Where("ur.user_id = ?", userID).
		Order("sys_role.name").
		Find(&list).Error
	return list, err
}

// Assign 角色行加共享锁，与 DeleteUnassigned 互斥，已拥有时返回 false
func (r *repository) Assign(ctx context.Context, userID, roleID int64) (bool, error) {
	var created bool
	err := r.Transaction(ctx, func(tx *gorm.DB) error {
		if err := lockRole(tx, roleID, "SHARE"); err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.UserRole{UserID: userID, RoleID: roleID})
		created = res.RowsAffected > 0
		return res.Error
	})
	return created, err
}

// Revoke 未拥有时返回 false
func (r *repository) Revoke(ctx context.Context, userID, roleID int64) (bool, error) {
	res := r.DB().WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&model.UserRole{})
	return res.RowsAffected > 0, res.Error
}

// PermissionRepository 权限仓储接口
type PermissionRepository interface {
	dal.Repository[model.Permission]
	FindByName(ctx context.Context, name string) (*model.Permission, error)
	FindByNames(ctx context.Context, names []string) ([]model.Permission, error)
	DeleteWithGrants(ctx context.Context, id int64) error
	Upsert(ctx context.Context, p *model.Permission) error
}

type permissionRepository struct {
	*dal.BaseRepository[model.Permission]
}

// NewPermissionRepository 创建权限仓储
func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{BaseRepository: dal.NewBaseRepository[model.Permission](db)}
}

func (r *permissionRepository) FindByName(ctx context.Context, name string) (*model.Permission, error) {
	return r.FindOne(ctx, map[string]interface{}{"name": name})
}

func (r *permissionRepository) FindByNames(ctx context.Context, names []string) ([]model.Permission, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var list []model.Permission
	err := r.DB().WithContext(ctx).Where("name IN ?", names).Order("name").Find(&list).Error
	return list, err
}

// DeleteWithGrants 删除权限并级联删除授权
func (r *permissionRepository) DeleteWithGrants(ctx context.Context, id int64) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("permission_id = ?", id).Delete(&model.RoleGrant{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Permission{}).Error
	})
}

// Upsert 按名称写入，已存在时更新分组与描述
func (r *permissionRepository) Upsert(ctx context.Context, p *model.Permission) error {
	return r.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"group_name", "description", "updated_at"}),
		}).
		Create(p).Error
}
