package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	apierrors "github.com/narvanalabs/fleet-monitor/internal/api/errors"
	"github.com/narvanalabs/fleet-monitor/internal/api/middleware"
	"github.com/narvanalabs/fleet-monitor/internal/auth"
	"github.com/narvanalabs/fleet-monitor/internal/metrics"
	"github.com/narvanalabs/fleet-monitor/internal/models"
	"github.com/narvanalabs/fleet-monitor/internal/users"
)

// UserStore is the account table used by the users endpoints.
type UserStore interface {
	List(ctx context.Context) ([]models.User, error)
	Create(ctx context.Context, username, password, email string, role models.Role) (*models.User, error)
	UpdatePreferences(ctx context.Context, id string, patch models.PreferencesPatch) (*models.User, error)
}

// RosterNotifier is told when an account changes.
type RosterNotifier interface {
	UsersUpdated(ctx context.Context)
}

// UsersHandler handles account endpoints.
type UsersHandler struct {
	users    UserStore
	rbac     *auth.RBACService
	notifier RosterNotifier
	logger   *slog.Logger
}

// NewUsersHandler creates a new users handler. notifier may be nil.
func NewUsersHandler(accounts UserStore, rbac *auth.RBACService, notifier RosterNotifier, logger *slog.Logger) *UsersHandler {
	return &UsersHandler{
		users:    accounts,
		rbac:     rbac,
		notifier: notifier,
		logger:   logger,
	}
}

// List returns every account.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list users", "error", err)
		WriteInternalError(w, r, "failed to list users")
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Email    string      `json:"email"`
	Role     models.Role `json:"role,omitempty"`
}

func (req CreateUserRequest) validate() apierrors.ValidationErrors {
	var errs apierrors.ValidationErrors
	if req.Username == "" {
		errs.Add("username", "username is required")
	}
	if req.Password == "" {
		errs.Add("password", "password is required")
	}
	switch req.Role {
	case "", models.RoleAdmin, models.RoleUser:
	default:
		errs.Add("role", "role must be admin or user")
	}
	return errs
}

// Create adds an account and pushes the new roster to stream clients.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := req.validate(); errs.HasErrors() {
		WriteError(w, r, errs.ToAPIError())
		return
	}

	user, err := h.users.Create(r.Context(), req.Username, req.Password, req.Email, req.Role)
	if err != nil {
		if errors.Is(err, users.ErrUsernameTaken) {
			WriteConflict(w, r, "Username already exists")
			return
		}
		h.logger.Error("failed to create user", "error", err, "username", req.Username)
		WriteInternalError(w, r, "failed to create user")
		return
	}

	if h.notifier != nil {
		h.notifier.UsersUpdated(r.Context())
	}
	WriteJSON(w, http.StatusCreated, user)
}

// UpdatePreferences merges a partial preferences update into an account.
// Callers may edit their own account; editing another needs manage_users.
func (h *UsersHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	targetID := chi.URLParam(r, "userID")
	callerID := middleware.GetUserID(ctx)

	if targetID != callerID {
		if err := h.rbac.CheckPermission(ctx, callerID, auth.PermissionManageUsers); err != nil {
			h.logger.Debug("preferences edit denied", "user_id", callerID, "target_id", targetID)
			WriteForbidden(w, r, "Insufficient permissions")
			return
		}
	}

	var patch models.PreferencesPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if errs := validatePreferences(patch); errs.HasErrors() {
		WriteError(w, r, errs.ToAPIError())
		return
	}

	user, err := h.users.UpdatePreferences(ctx, targetID, patch)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			WriteNotFound(w, r, "User not found")
			return
		}
		h.logger.Error("failed to update preferences", "error", err, "user_id", targetID)
		WriteInternalError(w, r, "failed to update preferences")
		return
	}

	if h.notifier != nil {
		h.notifier.UsersUpdated(ctx)
	}
	WriteJSON(w, http.StatusOK, user)
}

func validatePreferences(p models.PreferencesPatch) apierrors.ValidationErrors {
	var errs apierrors.ValidationErrors
	if p.Theme != nil && *p.Theme != models.ThemeLight && *p.Theme != models.ThemeDark {
		errs.Add("theme", "theme must be light or dark")
	}
	if p.DefaultTimeRange != nil {
		if _, ok := metrics.LookupRange(*p.DefaultTimeRange); !ok {
			errs.Add("defaultTimeRange", "defaultTimeRange must be one of 1h, 24h, 7d, 30d")
		}
	}
	return errs
}
