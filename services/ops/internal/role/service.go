package role

import (
	"context"
	"fmt"
	"strings"

	"github.com/opshub/pkg/errors"
	"github.com/opshub/pkg/logger"
	"github.com/opshub/pkg/utils"
	"github.com/opshub/pkg/validate"
	"github.com/opshub/services/ops/internal/model"
	"github.com/opshub/services/ops/internal/permission"
	"go.uber.org/zap"
)

// Resolver 权限解析与缓存失效，由 permission.Resolver 实现
type Resolver interface {
	Resolve(ctx context.Context, userID int64) (permission.Set, error)
	Invalidate(ctx context.Context, userID int64) error
	InvalidateAll(ctx context.Context) error
}

// Notifier 站内通知
type Notifier interface {
	Dispatch(ctx context.Context, userID int64, typ, title, message string, payload any) (*model.Notification, error)
}

// Service 角色、权限与用户角色分配。
// 每次变更写库成功后立即失效权限缓存再返回。
type Service struct {
	roles    Repository
	perms    PermissionRepository
	resolver Resolver
	notifier Notifier
	log      *zap.Logger
}

// NewService 创建角色服务
func NewService(roles Repository, perms PermissionRepository, resolver Resolver, notifier Notifier) *Service {
	return &Service{
		roles:    roles,
		perms:    perms,
		resolver: resolver,
		notifier: notifier,
		log:      logger.Named("role"),
	}
}

// ListRoles 角色列表
func (s *Service) ListRoles(ctx context.Context) ([]View, error) {
	roles, err := s.roles.FindAll(ctx, nil, orderByName)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	views := make([]View, 0, len(roles))
	for _, r := range roles {
		v, err := s.view(ctx, r)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

// GetRole 角色详情
func (s *Service) GetRole(ctx context.Context, id int64) (*View, error) {
	r, err := s.role(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, *r)
}

// CreateRole 创建角色，可同时授予权限
func (s *Service) CreateRole(ctx context.Context, req *CreateRoleRequest) (*View, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureRoleNameFree(ctx, name, 0); err != nil {
		return nil, err
	}
	ids, err := s.permissionIDs(ctx, req.Permissions)
	if err != nil {
		return nil, err
	}

	r := &model.Role{Name: name, Description: req.Description}
	if err := s.roles.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create role: %w", err)
	}
	if err := s.roles.AddGrants(ctx, r.ID, ids); err != nil {
		return nil, fmt.Errorf("grant permissions: %w", err)
	}
	return s.view(ctx, *r)
}

// UpdateRole 修改名称与描述
func (s *Service) UpdateRole(ctx context.Context, id int64, req *UpdateRoleRequest) (*View, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	r, err := s.role(ctx, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if r.Name == AdminRole && name != AdminRole {
		return nil, errors.Conflict("内置角色不能改名")
	}
	if err := s.ensureRoleNameFree(ctx, name, id); err != nil {
		return nil, err
	}
	r.Name = name
	r.Description = req.Description
	if err := s.roles.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	return s.view(ctx, *r)
}

// DeleteRole 删除角色，仍有用户拥有时拒绝
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	r, err := s.role(ctx, id)
	if err != nil {
		return err
	}
	if r.Name == AdminRole {
		return errors.Conflict("内置角色不能删除")
	}
	n, err := s.roles.DeleteUnassigned(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("delete role: %w", err)
	}
	if n > 0 {
		return errors.Conflict(fmt.Sprintf("角色仍分配给 %d 个用户", n))
	}
	return s.resolver.InvalidateAll(ctx)
}

// SetRolePermissions 覆盖角色的权限
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, names []string) (*View, error) {
	return s.changeGrants(ctx, roleID, names, s.roles.SetGrants)
}

// GrantPermissions 为角色追加权限
func (s *Service) GrantPermissions(ctx context.Context, roleID int64, names []string) (*View, error) {
	return s.changeGrants(ctx, roleID, names, s.roles.AddGrants)
}

func (s *Service) changeGrants(ctx context.Context, roleID int64, names []string, apply func(context.Context, int64, []int64) error) (*View, error) {
	r, err := s.role(ctx, roleID)
	if err != nil {
		return nil, err
	}
	ids, err := s.permissionIDs(ctx, names)
	if err != nil {
		return nil, err
	}
	if err := apply(ctx, roleID, ids); err != nil {
		return nil, fmt.Errorf("update grants: %w", err)
	}
	if err := s.resolver.InvalidateAll(ctx); err != nil {
		return nil, err
	}
	return s.view(ctx, *r)
}

// ListPermissions 权限列表
func (s *Service) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	list, err := s.perms.FindAll(ctx, nil, orderByName)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return list, nil
}

// CreatePermission 登记权限，名称必须在目录中
func (s *Service) CreatePermission(ctx context.Context, req *CreatePermissionRequest) (*model.Permission, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	name, ok := permission.Parse(strings.TrimSpace(req.Name))
	if !ok {
		return nil, errors.Validation("未知权限: " + req.Name)
	}
	existing, err := s.perms.FindByName(ctx, string(name))
	if err != nil {
		return nil, fmt.Errorf("find permission: %w", err)
	}
	if existing != nil {
		return nil, errors.Duplicate("权限名称")
	}
	p := &model.Permission{Name: string(name), Group: req.Group, Description: req.Description}
	if err := s.perms.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create permission: %w", err)
	}
	return p, nil
}

// DeletePermission 删除权限并级联移除所有授权
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	p, err := s.perms.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("find permission: %w", err)
	}
	if p == nil {
		return errors.NotFound("权限")
	}
	if err := s.perms.DeleteWithGrants(ctx, id); err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	return s.resolver.InvalidateAll(ctx)
}

// UserRoles 用户拥有的角色
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]model.Role, error) {
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	roles, err := s.roles.UserRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	if roles == nil {
		roles = []model.Role{}
	}
	return roles, nil
}

// AssignRole 为用户分配角色
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if err := s.ensureUser(ctx, userID); err != nil {
		return err
	}
	r, err := s.role(ctx, roleID)
	if err != nil {
		return err
	}
	created, err := s.roles.Assign(ctx, userID, roleID)
	if err != nil {
		if errors.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("assign role: %w", err)
	}
	if !created {
		return errors.Conflict("用户已拥有该角色")
	}
	if err := s.resolver.Invalidate(ctx, userID); err != nil {
		return err
	}
	s.notify(ctx, userID, NotificationRoleAssigned, "角色变更", fmt.Sprintf("你已获得角色「%s」", r.Name), roleID)
	return nil
}

// RevokeRole 撤销用户角色
func (s *Service) RevokeRole(ctx context.Context, userID, roleID int64) error {
	r, err := s.role(ctx, roleID)
	if err != nil {
		return err
	}
	removed, err := s.roles.Revoke(ctx, userID, roleID)
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	if !removed {
		return errors.NotFound("用户角色")
	}
	if err := s.resolver.Invalidate(ctx, userID); err != nil {
		return err
	}
	s.notify(ctx, userID, NotificationRoleRevoked, "角色变更", fmt.Sprintf("你的角色「%s」已被撤销", r.Name), roleID)
	return nil
}

// Effective 用户当前有效权限
func (s *Service) Effective(ctx context.Context, userID int64) (*EffectivePermissions, error) {
	set, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := utils.Map(set.Names(), func(n permission.Name) string { return string(n) })
	return &EffectivePermissions{UserID: userID, Permissions: names}, nil
}

// EnsureCatalog 同步权限目录并保证内置管理员角色拥有全部权限
func (s *Service) EnsureCatalog(ctx context.Context) (*model.Role, error) {
	names := make([]string, 0, len(permission.Catalog()))
	for _, d := range permission.Catalog() {
		p := &model.Permission{Name: string(d.Name), Group: d.Group, Description: d.Description}
		if err := s.perms.Upsert(ctx, p); err != nil {
			return nil, fmt.Errorf("seed permission %s: %w", d.Name, err)
		}
		names = append(names, string(d.Name))
	}

	admin, err := s.roles.FindByName(ctx, AdminRole)
	if err != nil {
		return nil, fmt.Errorf("find admin role: %w", err)
	}
	if admin == nil {
		admin = &model.Role{Name: AdminRole, Description: "系统管理员"}
		if err := s.roles.Create(ctx, admin); err != nil {
			return nil, fmt.Errorf("create admin role: %w", err)
		}
	}
	ids, err := s.permissionIDs(ctx, names)
	if err != nil {
		return nil, err
	}
	if err := s.roles.AddGrants(ctx, admin.ID, ids); err != nil {
		return nil, fmt.Errorf("grant admin role: %w", err)
	}
	if err := s.resolver.InvalidateAll(ctx); err != nil {
		return nil, err
	}
	s.log.Info("permission catalog synced", zap.Int("permissions", len(names)))
	return admin, nil
}

// permissionIDs 将名称解析为已登记权限的 ID
func (s *Service) permissionIDs(ctx context.Context, names []string) ([]int64, error) {
	names = utils.Unique(names)
	for _, n := range names {
		if _, ok := permission.Parse(n); !ok {
			return nil, errors.Validation("未知权限: " + n)
		}
	}
	rows, err := s.perms.FindByNames(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("find permissions: %w", err)
	}
	if len(rows) != len(names) {
		found := make(map[string]struct{}, len(rows))
		for _, p := range rows {
			found[p.Name] = struct{}{}
		}
		for _, n := range names {
			if _, ok := found[n]; !ok {
				return nil, errors.NotFound("权限 " + n)
			}
		}
	}
	return utils.Map(rows, func(p model.Permission) int64 { return p.ID }), nil
}

func (s *Service) view(ctx context.Context, r model.Role) (*View, error) {
	perms, err := s.roles.RolePermissions(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	names := utils.Map(perms, func(p model.Permission) string { return p.Name })
	return &View{Role: r, Permissions: names}, nil
}

func (s *Service) role(ctx context.Context, id int64) (*model.Role, error) {
	r, err := s.roles.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find role: %w", err)
	}
	if r == nil {
		return nil, errors.NotFound("角色")
	}
	return r, nil
}

func (s *Service) ensureRoleNameFree(ctx context.Context, name string, selfID int64) error {
	existing, err := s.roles.FindByName(ctx, name)
	if err != nil {
		return fmt.Errorf("find role: %w", err)
	}
	if existing != nil && existing.ID != selfID {
		return errors.Duplicate("角色名称")
	}
	return nil
}

func (s *Service) ensureUser(ctx context.Context, userID int64) error {
	ok, err := s.roles.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if !ok {
		return errors.NotFound("用户")
	}
	return nil
}

func (s *Service) notify(ctx context.Context, userID int64, typ, title, message string, roleID int64) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Dispatch(ctx, userID, typ, title, message, map[string]any{"roleId": roleID}); err != nil {
		s.log.Warn("role notification failed", logger.UserID(userID), zap.Error(err))
	}
}
