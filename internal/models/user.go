package models

import "time"

// Role represents a user's role in the system.
type Role string

const (
	// RoleAdmin can manage rules and users.
	RoleAdmin Role = "admin"
	// RoleUser can view the fleet and acknowledge alerts.
	RoleUser Role = "user"
)

// Theme is the UI colour scheme preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// UserPreferences are per-user dashboard settings.
type UserPreferences struct {
	Theme              Theme  `json:"theme"`
	DefaultTimeRange   string `json:"defaultTimeRange"`
	AlertNotifications bool   `json:"alertNotifications"`
	EmailNotifications bool   `json:"emailNotifications"`
}

// PreferencesPatch carries a partial preferences update.
type PreferencesPatch struct {
	Theme              *Theme  `json:"theme,omitempty"`
	DefaultTimeRange   *string `json:"defaultTimeRange,omitempty"`
	AlertNotifications *bool   `json:"alertNotifications,omitempty"`
	EmailNotifications *bool   `json:"emailNotifications,omitempty"`
}

// Apply merges the set fields of p into prefs.
func (p PreferencesPatch) Apply(prefs UserPreferences) UserPreferences {
	if p.Theme != nil {
		prefs.Theme = *p.Theme
	}
	if p.DefaultTimeRange != nil {
		prefs.DefaultTimeRange = *p.DefaultTimeRange
	}
	if p.AlertNotifications != nil {
		prefs.AlertNotifications = *p.AlertNotifications
	}
	if p.EmailNotifications != nil {
		prefs.EmailNotifications = *p.EmailNotifications
	}
	return prefs
}

// User is an account without its secret fields.
type User struct {
	ID          string          `json:"id"`
	Username    string          `json:"username"`
	Email       string          `json:"email"`
	Role        Role            `json:"role"`
	Preferences UserPreferences `json:"preferences"`
	LastLogin   time.Time       `json:"lastLogin"`
	CreatedAt   time.Time       `json:"createdAt"`
}
