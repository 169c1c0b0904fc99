package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/narvanalabs/fleet-monitor/internal/auth"
	"github.com/narvanalabs/fleet-monitor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-test-secret-0123456789abcdef"

func newAuthService(expiry time.Duration) *auth.Service {
	return auth.NewService(&auth.Config{
		JWTSecret:   []byte(testSecret),
		TokenExpiry: expiry,
	}, slog.Default())
}

// echoIdentity writes the identity Authenticate stored in the context.
func echoIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	w.Header().Set("X-User-ID", GetUserID(ctx))
	w.Header().Set("X-Username", GetUsername(ctx))
	w.Header().Set("X-Role", string(GetRole(ctx)))
	w.WriteHeader(http.StatusOK)
}

// Any token issued by the service authenticates and exposes its identity to
// downstream handlers.
func TestPropertyAuthenticatePropagatesIdentity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	svc := newAuthService(time.Hour)
	h := NewAuthMiddleware(svc, nil).Authenticate(http.HandlerFunc(echoIdentity))

	properties.Property("issued token reaches handler with its identity", prop.ForAll(
		func(userID, username string, admin bool) bool {
			role := models.RoleUser
			if admin {
				role = models.RoleAdmin
			}
			token, err := svc.GenerateToken(userID, username, role)
			if err != nil {
				return false
			}

			req := httptest.NewRequest(http.MethodGet, "/api/nodes", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			return rr.Code == http.StatusOK &&
				rr.Header().Get("X-User-ID") == userID &&
				rr.Header().Get("X-Username") == username &&
				rr.Header().Get("X-Role") == string(role)
		},
		gen.Identifier(),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.Property("arbitrary bearer strings are rejected", prop.ForAll(
		func(garbage string) bool {
			req := httptest.NewRequest(http.MethodGet, "/api/nodes", nil)
			req.Header.Set("Authorization", "Bearer "+garbage)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			return rr.Code == http.StatusUnauthorized
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.TestingRun(t)
}

func TestAuthenticateRejects(t *testing.T) {
	expired := newAuthService(-time.Minute)
	expiredToken, err := expired.GenerateToken("admin", "admin", models.RoleAdmin)
	require.NoError(t, err)

	other := auth.NewService(&auth.Config{
		JWTSecret:   []byte("another-secret-0123456789abcdefghij"),
		TokenExpiry: time.Hour,
	}, nil)
	foreignToken, err := other.GenerateToken("admin", "admin", models.RoleAdmin)
	require.NoError(t, err)

	h := NewAuthMiddleware(newAuthService(time.Hour), nil).Authenticate(http.HandlerFunc(echoIdentity))

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "Missing authentication"},
		{"wrong scheme", "Basic YWRtaW46YWRtaW4=", "Missing authentication"},
		{"expired", "Bearer " + expiredToken, "Token has expired"},
		{"foreign signature", "Bearer " + foreignToken, "Invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/nodes", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, rr.Body.String(), `"code":"UNAUTHORIZED"`)
			assert.Contains(t, rr.Body.String(), tt.message)
		})
	}
}

type mockUserLookup struct {
	users map[string]models.Role
}

func (m *mockUserLookup) GetByID(_ context.Context, id string) (*models.User, error) {
	role, ok := m.users[id]
	if !ok {
		return nil, errors.New("no such user")
	}
	return &models.User{ID: id, Username: id, Role: role}, nil
}

func TestRequirePermission(t *testing.T) {
	rbac := auth.NewRBACService(&mockUserLookup{users: map[string]models.Role{
		"admin": models.RoleAdmin,
		"user":  models.RoleUser,
	}}, nil)

	h := RequirePermission(rbac, auth.PermissionManageRules, slog.Default())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	tests := []struct {
		name   string
		userID string
		want   int
	}{
		{"admin allowed", "admin", http.StatusNoContent},
		{"user forbidden", "user", http.StatusForbidden},
		{"deleted account", "ghost", http.StatusUnauthorized},
		{"no identity", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/alerts/rules", nil)
			if tt.userID != "" {
				req = req.WithContext(WithClaims(req.Context(), &auth.Claims{UserID: tt.userID}))
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestContextGettersEmpty(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetUserID(ctx))
	assert.Empty(t, GetUsername(ctx))
	assert.Empty(t, GetRole(ctx))
}
