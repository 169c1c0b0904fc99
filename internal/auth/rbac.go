package auth

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/narvanalabs/fleet-monitor/internal/models"
)

// RBAC errors.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrUserNotFound     = errors.New("user not found")
)

// Permission represents an action that can be performed.
type Permission string

const (
	// PermissionView allows reading nodes, health, metrics and alerts.
	PermissionView Permission = "view"
	// PermissionAcknowledge allows acknowledging alerts.
	PermissionAcknowledge Permission = "acknowledge"
	// PermissionManageRules allows editing alert rules and deleting alerts.
	PermissionManageRules Permission = "manage_rules"
	// PermissionManageUsers allows listing accounts and editing anyone's preferences.
	PermissionManageUsers Permission = "manage_users"
	// PermissionManageNodes allows adding, replacing and removing monitored nodes.
	PermissionManageNodes Permission = "manage_nodes"
)

var rolePermissions = map[models.Role][]Permission{
	models.RoleAdmin: {
		PermissionView,
		PermissionAcknowledge,
		PermissionManageRules,
		PermissionManageUsers,
		PermissionManageNodes,
	},
	models.RoleUser: {
		PermissionView,
		PermissionAcknowledge,
	},
}

// CheckRolePermission checks if a role has a specific permission.
func CheckRolePermission(role models.Role, permission Permission) error {
	if slices.Contains(rolePermissions[role], permission) {
		return nil
	}
	return ErrPermissionDenied
}

// HasPermission reports whether role grants permission.
func HasPermission(role models.Role, permission Permission) bool {
	return CheckRolePermission(role, permission) == nil
}

// UserLookup resolves an account by id.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// RBACService checks permissions against the account's current role rather
// than the role embedded in its token.
type RBACService struct {
	users  UserLookup
	logger *slog.Logger
}

// NewRBACService creates a new RBAC service.
func NewRBACService(users UserLookup, logger *slog.Logger) *RBACService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RBACService{
		users:  users,
		logger: logger,
	}
}

// CheckPermission verifies a user has permission for an action.
func (s *RBACService) CheckPermission(ctx context.Context, userID string, permission Permission) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Debug("permission lookup failed", "user_id", userID, "error", err)
		return ErrUserNotFound
	}
	if user == nil {
		return ErrUserNotFound
	}
	return CheckRolePermission(user.Role, permission)
}
