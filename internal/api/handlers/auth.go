package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/narvanalabs/fleet-monitor/internal/api/middleware"
	"github.com/narvanalabs/fleet-monitor/internal/auth"
	"github.com/narvanalabs/fleet-monitor/internal/models"
	"github.com/narvanalabs/fleet-monitor/internal/users"
)

// Authenticator verifies account credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	users       Authenticator
	authService *auth.Service
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(accounts Authenticator, authSvc *auth.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:       accounts,
		authService: authSvc,
		logger:      logger,
	}
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token and the account it belongs to.
type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

// Login exchanges credentials for a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		WriteBadRequest(w, r, "username and password required")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			h.logger.Info("login rejected", "username", req.Username)
			WriteUnauthorized(w, r, "Invalid credentials")
			return
		}
		h.logger.Error("login failed", "error", err)
		WriteInternalError(w, r, "failed to authenticate")
		return
	}

	token, err := h.authService.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		h.logger.Error("failed to generate token", "error", err, "user_id", user.ID)
		WriteInternalError(w, r, "failed to generate token")
		return
	}

	WriteJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.authService.TokenExpiry()),
		User:      *user,
	})
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			WriteUnauthorized(w, r, "Unknown account")
			return
		}
		h.logger.Error("failed to load account", "error", err)
		WriteInternalError(w, r, "failed to load account")
		return
	}
	WriteJSON(w, http.StatusOK, user)
}
