package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"carhistory/internal/audit"
	"carhistory/internal/models"
	"carhistory/internal/repository/scylla"
)

var (
	ErrInvalidRole        = errors.New("unknown role")
	ErrSuperadminRequired = errors.New("superadmin required")
	ErrUserNotFound       = errors.New("user not found")
)

// RoleChange describes an applied role assignment.
type RoleChange struct {
	UserID  string    `json:"user_id"`
	OldRole string    `json:"old_role"`
	NewRole string    `json:"new_role"`
	At      time.Time `json:"at"`
}

// RoleService handles role assignment. Granting or revoking superadmin is
// restricted to superadmin actors; every change and every denial lands in
// the audit trail with the old and new role.
type RoleService struct {
	users  scylla.UserRepository
	trail  audit.Recorder
	logger *zap.Logger
	now    func() time.Time
}

func NewRoleService(users scylla.UserRepository, trail audit.Recorder, logger *zap.Logger) *RoleService {
	return &RoleService{users: users, trail: trail, logger: logger, now: time.Now}
}

func (s *RoleService) ChangeRole(ctx context.Context, actor models.Actor, targetUserID, newRole, reason, requestID string) (*RoleChange, error) {
	if !models.ValidRole(newRole) {
		return nil, ErrInvalidRole
	}

	target, err := s.users.GetByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	touchesSuperadmin := newRole == models.RoleSuperadmin || target.Role == models.RoleSuperadmin
	if touchesSuperadmin && actor.Role != models.RoleSuperadmin {
		_ = s.trail.Record(ctx, audit.Entry{
			Action:      models.ActionRoleChangeDenied,
			Result:      models.ResultDenied,
			ActorUserID: actor.UserID,
			TargetID:    targetUserID,
			ReasonCode:  models.ReasonSuperadminRequired,
			RequestID:   requestID,
			Metadata:    map[string]any{"requested_role": newRole},
		})
		return nil, ErrSuperadminRequired
	}

	if err := s.users.UpdateRole(ctx, targetUserID, newRole); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	_ = s.trail.Record(ctx, audit.Entry{
		Action:      models.ActionRoleChanged,
		Result:      models.ResultSuccess,
		ActorUserID: actor.UserID,
		TargetID:    targetUserID,
		RequestID:   requestID,
		Metadata: map[string]any{
			"old_role": target.Role,
			"new_role": newRole,
			"reason":   reason,
		},
	})
	return &RoleChange{
		UserID:  targetUserID,
		OldRole: target.Role,
		NewRole: newRole,
		At:      s.now().UTC(),
	}, nil
}
