package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"carhistory/internal/models"
)

func seedUser(t *testing.T, users *fakeUserRepo, role string) *models.User {
	t.Helper()
	u, err := users.UpsertByEmailHash(context.Background(), "hash-"+role+"-"+t.Name())
	if err != nil {
		t.Fatal(err)
	}
	if err := users.UpdateRole(context.Background(), u.UserID, role); err != nil {
		t.Fatal(err)
	}
	u.Role = role
	return u
}

func TestChangeRole(t *testing.T) {
	admin := models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
	superadmin := models.Actor{UserID: "root-1", Role: models.RoleSuperadmin}

	t.Run("admin promotes user to dealer", func(t *testing.T) {
		users := newFakeUserRepo()
		trail := &fakeTrail{}
		svc := NewRoleService(users, trail, zap.NewNop())
		target := seedUser(t, users, models.RoleUser)

		change, err := svc.ChangeRole(context.Background(), admin, target.UserID, models.RoleDealer, "verified dealership", "")
		if err != nil {
			t.Fatalf("ChangeRole: %v", err)
		}
		if change.OldRole != models.RoleUser || change.NewRole != models.RoleDealer {
			t.Errorf("change = %s -> %s, want user -> dealer", change.OldRole, change.NewRole)
		}
		got, _ := users.GetByID(context.Background(), target.UserID)
		if got.Role != models.RoleDealer {
			t.Errorf("role = %q, want dealer", got.Role)
		}
		if trail.count(models.ActionRoleChanged) != 1 {
			t.Error("missing ROLE_CHANGED audit event")
		}
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		users := newFakeUserRepo()
		svc := NewRoleService(users, &fakeTrail{}, zap.NewNop())

		_, err := svc.ChangeRole(context.Background(), admin, "anyone", "owner", "", "")
		if !errors.Is(err, ErrInvalidRole) {
			t.Fatalf("err = %v, want ErrInvalidRole", err)
		}
	})

	t.Run("admin cannot grant superadmin", func(t *testing.T) {
		users := newFakeUserRepo()
		trail := &fakeTrail{}
		svc := NewRoleService(users, trail, zap.NewNop())
		target := seedUser(t, users, models.RoleUser)

		_, err := svc.ChangeRole(context.Background(), admin, target.UserID, models.RoleSuperadmin, "", "")
		if !errors.Is(err, ErrSuperadminRequired) {
			t.Fatalf("err = %v, want ErrSuperadminRequired", err)
		}
		got, _ := users.GetByID(context.Background(), target.UserID)
		if got.Role != models.RoleUser {
			t.Errorf("role = %q, want unchanged user", got.Role)
		}
		if trail.count(models.ActionRoleChangeDenied) != 1 {
			t.Error("missing ROLE_CHANGE_DENIED audit event")
		}
	})

	t.Run("admin cannot demote a superadmin", func(t *testing.T) {
		users := newFakeUserRepo()
		svc := NewRoleService(users, &fakeTrail{}, zap.NewNop())
		target := seedUser(t, users, models.RoleSuperadmin)

		_, err := svc.ChangeRole(context.Background(), admin, target.UserID, models.RoleUser, "", "")
		if !errors.Is(err, ErrSuperadminRequired) {
			t.Fatalf("err = %v, want ErrSuperadminRequired", err)
		}
	})

	t.Run("superadmin grants superadmin", func(t *testing.T) {
		users := newFakeUserRepo()
		svc := NewRoleService(users, &fakeTrail{}, zap.NewNop())
		target := seedUser(t, users, models.RoleAdmin)

		if _, err := svc.ChangeRole(context.Background(), superadmin, target.UserID, models.RoleSuperadmin, "succession", ""); err != nil {
			t.Fatalf("ChangeRole: %v", err)
		}
		got, _ := users.GetByID(context.Background(), target.UserID)
		if got.Role != models.RoleSuperadmin {
			t.Errorf("role = %q, want superadmin", got.Role)
		}
	})

	t.Run("unknown target", func(t *testing.T) {
		users := newFakeUserRepo()
		svc := NewRoleService(users, &fakeTrail{}, zap.NewNop())

		_, err := svc.ChangeRole(context.Background(), admin, "missing-user", models.RoleVIP, "", "")
		if !errors.Is(err, ErrUserNotFound) {
			t.Fatalf("err = %v, want ErrUserNotFound", err)
		}
	})
}
