package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/narvanalabs/fleet-monitor/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(bcrypt.MinCost, nil)
	require.NoError(t, err)
	return s
}

func TestSeededAccounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "admin", list[0].ID)
	assert.Equal(t, models.RoleAdmin, list[0].Role)
	assert.Equal(t, models.ThemeDark, list[0].Preferences.Theme)
	assert.True(t, list[0].Preferences.EmailNotifications)

	assert.Equal(t, "user", list[1].ID)
	assert.Equal(t, models.RoleUser, list[1].Role)
	assert.Equal(t, models.ThemeLight, list[1].Preferences.Theme)
	assert.False(t, list[1].Preferences.EmailNotifications)
}

func TestAuthenticate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.Authenticate(ctx, "admin", "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.ID)

	_, err = s.Authenticate(ctx, "admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Authenticate(ctx, "nobody", "admin")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateUpdatesLastLogin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	before, err := s.GetByID(ctx, "user")
	require.NoError(t, err)

	u, err := s.Authenticate(ctx, "user", "user")
	require.NoError(t, err)
	assert.False(t, u.LastLogin.Before(before.LastLogin))
}

func TestCreate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.Create(ctx, "ops", "secret", "ops@example.com", "")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.Equal(t, "24h", u.Preferences.DefaultTimeRange)

	_, err = s.Authenticate(ctx, "ops", "secret")
	assert.NoError(t, err)

	_, err = s.Create(ctx, "ops", "other", "x@example.com", models.RoleAdmin)
	assert.ErrorIs(t, err, ErrUsernameTaken)

	list, _ := s.List(ctx)
	assert.Len(t, list, 3)
}

func TestUpdatePreferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	theme := models.ThemeDark
	email := true
	u, err := s.UpdatePreferences(ctx, "user", models.PreferencesPatch{Theme: &theme, EmailNotifications: &email})
	require.NoError(t, err)
	assert.Equal(t, models.ThemeDark, u.Preferences.Theme)
	assert.True(t, u.Preferences.EmailNotifications)
	assert.Equal(t, "24h", u.Preferences.DefaultTimeRange)

	stored, _ := s.GetByID(ctx, "user")
	assert.Equal(t, u.Preferences, stored.Preferences)

	_, err = s.UpdatePreferences(ctx, "ghost", models.PreferencesPatch{})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetByIDReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.GetByID(ctx, "admin")
	require.NoError(t, err)
	u.Role = models.RoleUser

	again, _ := s.GetByID(ctx, "admin")
	assert.Equal(t, models.RoleAdmin, again.Role)

	_, err = s.GetByID(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
