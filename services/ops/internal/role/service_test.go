package role

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/opshub/pkg/cache"
	"github.com/opshub/pkg/errors"
	"github.com/opshub/services/ops/internal/model"
	"github.com/opshub/services/ops/internal/permission"
	"github.com/opshub/services/ops/internal/testutil"
	"gorm.io/gorm"
)

type fakeNotifier struct{ types []string }

func (f *fakeNotifier) Dispatch(_ context.Context, userID int64, typ, _, _ string, _ any) (*model.Notification, error) {
	f.types = append(f.types, typ)
	return &model.Notification{UserID: userID, Type: typ}, nil
}

type harness struct {
	db       *gorm.DB
	svc      *Service
	notifier *fakeNotifier
}

func setup(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	store := cache.New[permission.Set](cache.WithSweepInterval(0))
	t.Cleanup(store.Close)
	resolver := permission.NewResolver(store, permission.NewRepository(db), time.Minute)
	notifier := &fakeNotifier{}
	svc := NewService(NewRepository(db), NewPermissionRepository(db), resolver, notifier)
	if _, err := svc.EnsureCatalog(context.Background()); err != nil {
		t.Fatal(err)
	}
	return &harness{db: db, svc: svc, notifier: notifier}
}

func (h *harness) user(t *testing.T, name string) int64 {
	t.Helper()
	u := &model.User{Username: name, Password: "x", Status: model.UserStatusActive}
	testutil.MustCreate(t, h.db, u)
	return u.ID
}

func (h *harness) effective(t *testing.T, userID int64) []string {
	t.Helper()
	eff, err := h.svc.Effective(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	return eff.Permissions
}

func TestEnsureCatalogIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := setup(t)

	admin, err := h.svc.EnsureCatalog(ctx)
	if err != nil {
		t.Fatal(err)
	}
	perms, err := h.svc.ListPermissions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(perms) != len(permission.Catalog()) {
		t.Fatalf("permissions = %d, want %d", len(perms), len(permission.Catalog()))
	}
	view, err := h.svc.GetRole(ctx, admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Permissions) != len(permission.Catalog()) {
		t.Fatalf("admin grants = %v", view.Permissions)
	}
	roles, _ := h.svc.ListRoles(ctx)
	if len(roles) != 1 {
		t.Fatalf("roles = %d", len(roles))
	}
}

func TestAssignAndRevokeTakeEffectImmediately(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	uid := h.user(t, "alice")

	employee, err := h.svc.CreateRole(ctx, &CreateRoleRequest{
		Name:        "EMPLOYEE",
		Permissions: []string{"read_project", "request_leave", "read_project"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := employee.Permissions; !slices.Equal(got, []string{"read_project", "request_leave"}) {
		t.Fatalf("role permissions = %v", got)
	}

	if got := h.effective(t, uid); len(got) != 0 {
		t.Fatalf("before assign = %v", got)
	}
	if err := h.svc.AssignRole(ctx, uid, employee.ID); err != nil {
		t.Fatal(err)
	}
	if got := h.effective(t, uid); !slices.Equal(got, []string{"read_project", "request_leave"}) {
		t.Fatalf("after assign = %v", got)
	}
	if err := h.svc.AssignRole(ctx, uid, employee.ID); !errors.IsConflict(err) {
		t.Fatalf("duplicate assign err = %v", err)
	}

	if err := h.svc.RevokeRole(ctx, uid, employee.ID); err != nil {
		t.Fatal(err)
	}
	if got := h.effective(t, uid); len(got) != 0 {
		t.Fatalf("after revoke = %v", got)
	}
	if err := h.svc.RevokeRole(ctx, uid, employee.ID); !errors.IsNotFound(err) {
		t.Fatalf("second revoke err = %v", err)
	}
	want := []string{NotificationRoleAssigned, NotificationRoleRevoked}
	if !slices.Equal(h.notifier.types, want) {
		t.Fatalf("notifications = %v", h.notifier.types)
	}
}

func TestAssignUnknownUserOrRole(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	uid := h.user(t, "bob")

	if err := h.svc.AssignRole(ctx, 999, 1); !errors.IsNotFound(err) {
		t.Fatalf("unknown user err = %v", err)
	}
	if err := h.svc.AssignRole(ctx, uid, 999); !errors.IsNotFound(err) {
		t.Fatalf("unknown role err = %v", err)
	}
}

func TestGrantChangesReachAssignedUsers(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	uid := h.user(t, "carol")

	r, err := h.svc.CreateRole(ctx, &CreateRoleRequest{Name: "PM", Permissions: []string{"read_project"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.svc.AssignRole(ctx, uid, r.ID); err != nil {
		t.Fatal(err)
	}
	h.effective(t, uid)

	if _, err := h.svc.GrantPermissions(ctx, r.ID, []string{"assign_milestone"}); err != nil {
		t.Fatal(err)
	}
	if got := h.effective(t, uid); !slices.Equal(got, []string{"assign_milestone", "read_project"}) {
		t.Fatalf("after grant = %v", got)
	}

	if _, err := h.svc.SetRolePermissions(ctx, r.ID, []string{"manage_project"}); err != nil {
		t.Fatal(err)
	}
	if got := h.effective(t, uid); !slices.Equal(got, []string{"manage_project"}) {
		t.Fatalf("after set = %v", got)
	}

	if _, err := h.svc.SetRolePermissions(ctx, r.ID, []string{"launch_rockets"}); !errors.IsValidation(err) {
		t.Fatalf("unknown permission err = %v", err)
	}
}

func TestDeleteRoleRequiresNoAssignments(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	uid := h.user(t, "dave")

	r, err := h.svc.CreateRole(ctx, &CreateRoleRequest{Name: "AUDITOR", Permissions: []string{"read_billing"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.svc.AssignRole(ctx, uid, r.ID); err != nil {
		t.Fatal(err)
	}
	if err := h.svc.DeleteRole(ctx, r.ID); !errors.IsConflict(err) {
		t.Fatalf("delete assigned role err = %v", err)
	}
	if err := h.svc.RevokeRole(ctx, uid, r.ID); err != nil {
		t.Fatal(err)
	}
	if err := h.svc.DeleteRole(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.GetRole(ctx, r.ID); !errors.IsNotFound(err) {
		t.Fatalf("get deleted role err = %v", err)
	}

	admin, _ := h.svc.roles.FindByName(ctx, AdminRole)
	if err := h.svc.DeleteRole(ctx, admin.ID); !errors.IsConflict(err) {
		t.Fatalf("delete admin err = %v", err)
	}
}

func TestDeleteRoleDropsCachedGrants(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	uid := h.user(t, "frank")

	r, err := h.svc.CreateRole(ctx, &CreateRoleRequest{Name: "BILLING", Permissions: []string{"read_billing"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.svc.AssignRole(ctx, uid, r.ID); err != nil {
		t.Fatal(err)
	}
	if got := h.effective(t, uid); !slices.Contains(got, "read_billing") {
		t.Fatalf("effective = %v", got)
	}

	// 绕过服务移除分配，缓存中仍是旧权限
	if err := h.db.Where("user_id = ? AND role_id = ?", uid, r.ID).Delete(&model.UserRole{}).Error; err != nil {
		t.Fatal(err)
	}
	if got := h.effective(t, uid); !slices.Contains(got, "read_billing") {
		t.Fatalf("expected cached grants, effective = %v", got)
	}

	if err := h.svc.DeleteRole(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	if got := h.effective(t, uid); slices.Contains(got, "read_billing") {
		t.Fatalf("grants of deleted role still effective: %v", got)
	}
	if err := h.svc.DeleteRole(ctx, r.ID); !errors.IsNotFound(err) {
		t.Fatalf("delete twice err = %v", err)
	}
}

func TestAssignToDeletedRole(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	uid := h.user(t, "gina")

	r, err := h.svc.CreateRole(ctx, &CreateRoleRequest{Name: "TEMP"})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.svc.DeleteRole(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.roles.Assign(ctx, uid, r.ID); !errors.IsNotFound(err) {
		t.Fatalf("assign after delete err = %v", err)
	}
	n, err := h.svc.roles.DeleteUnassigned(ctx, r.ID)
	if !errors.IsNotFound(err) || n != 0 {
		t.Fatalf("DeleteUnassigned = %d, %v", n, err)
	}
}

func TestDeletePermissionCascades(t *testing.T) {
	ctx := context.Background()
	h := setup(t)
	uid := h.user(t, "erin")

	r, err := h.svc.CreateRole(ctx, &CreateRoleRequest{Name: "WRITER", Permissions: []string{"read_blog", "manage_blog"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.svc.AssignRole(ctx, uid, r.ID); err != nil {
		t.Fatal(err)
	}
	h.effective(t, uid)

	p, err := h.svc.perms.FindByName(ctx, "manage_blog")
	if err != nil || p == nil {
		t.Fatalf("find permission = %v, %v", p, err)
	}
	if err := h.svc.DeletePermission(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if got := h.effective(t, uid); !slices.Equal(got, []string{"read_blog"}) {
		t.Fatalf("after delete = %v", got)
	}
	var grants int64
	h.db.Model(&model.RoleGrant{}).Where("permission_id = ?", p.ID).Count(&grants)
	if grants != 0 {
		t.Fatalf("dangling grants = %d", grants)
	}

	if _, err := h.svc.CreatePermission(ctx, &CreatePermissionRequest{Name: "manage_blog", Group: "blog"}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.CreatePermission(ctx, &CreatePermissionRequest{Name: "manage_blog"}); !errors.IsConflict(err) {
		t.Fatalf("duplicate permission err = %v", err)
	}
	if _, err := h.svc.CreatePermission(ctx, &CreatePermissionRequest{Name: "fly"}); !errors.IsValidation(err) {
		t.Fatalf("unknown permission err = %v", err)
	}
}
