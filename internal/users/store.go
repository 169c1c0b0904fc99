// Package users holds the in-memory account table.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/narvanalabs/fleet-monitor/internal/models"
)

// Errors returned by the user store.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already exists")
)

type account struct {
	user         models.User
	passwordHash []byte
}

// Store is an in-memory account table. Password hashes never leave it.
type Store struct {
	mu         sync.RWMutex
	order      []string
	byID       map[string]*account
	byUsername map[string]*account

	cost   int
	now    func() time.Time
	logger *slog.Logger
}

// NewStore creates a store seeded with the built-in admin and user accounts.
// cost is the bcrypt cost; values outside bcrypt's range use the default.
func NewStore(cost int, logger *slog.Logger) (*Store, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		byID:       make(map[string]*account),
		byUsername: make(map[string]*account),
		cost:       cost,
		now:        time.Now,
		logger:     logger,
	}

	seeds := []struct {
		user     models.User
		password string
	}{
		{
			user: models.User{
				ID: "admin", Username: "admin", Email: "admin@example.com", Role: models.RoleAdmin,
				Preferences: models.UserPreferences{
					Theme: models.ThemeDark, DefaultTimeRange: "24h",
					AlertNotifications: true, EmailNotifications: true,
				},
			},
			password: "admin",
		},
		{
			user: models.User{
				ID: "user", Username: "user", Email: "user@example.com", Role: models.RoleUser,
				Preferences: models.UserPreferences{
					Theme: models.ThemeLight, DefaultTimeRange: "24h",
					AlertNotifications: true, EmailNotifications: false,
				},
			},
			password: "user",
		},
	}
	for _, seed := range seeds {
		if _, err := s.insert(seed.user, seed.password); err != nil {
			return nil, fmt.Errorf("seeding user %s: %w", seed.user.Username, err)
		}
	}
	return s, nil
}

func (s *Store) insert(u models.User, password string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("hashing password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[u.Username]; ok {
		return models.User{}, ErrUsernameTaken
	}
	now := s.now()
	u.CreatedAt = now
	u.LastLogin = now
	acc := &account{user: u, passwordHash: hash}
	s.byID[u.ID] = acc
	s.byUsername[u.Username] = acc
	s.order = append(s.order, u.ID)
	return u, nil
}

// Create adds an account. The role defaults to user.
func (s *Store) Create(ctx context.Context, username, password, email string, role models.Role) (*models.User, error) {
	if role == "" {
		role = models.RoleUser
	}
	u, err := s.insert(models.User{
		ID:       uuid.New().String(),
		Username: username,
		Email:    email,
		Role:     role,
		Preferences: models.UserPreferences{
			Theme:              models.ThemeLight,
			DefaultTimeRange:   "24h",
			AlertNotifications: true,
			EmailNotifications: true,
		},
	}, password)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", "user_id", u.ID, "username", u.Username, "role", u.Role)
	return &u, nil
}

// Authenticate verifies credentials and records the login time.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	s.mu.RLock()
	acc, ok := s.byUsername[username]
	var hash []byte
	if ok {
		hash = acc.passwordHash
	}
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	s.mu.Lock()
	acc.user.LastLogin = s.now()
	u := acc.user
	s.mu.Unlock()
	return &u, nil
}

// GetByID returns one account.
func (s *Store) GetByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := acc.user
	return &u, nil
}

// List returns every account in creation order.
func (s *Store) List(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].user)
	}
	return out, nil
}

// UpdatePreferences merges patch into the account's preferences.
func (s *Store) UpdatePreferences(ctx context.Context, id string, patch models.PreferencesPatch) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	acc.user.Preferences = patch.Apply(acc.user.Preferences)
	u := acc.user
	return &u, nil
}
