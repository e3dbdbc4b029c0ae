package domain

import "time"

type User struct {
	ID                   string     `json:"id"`
	Email                string     `json:"email"`
	Name                 string     `json:"name,omitempty"`
	PasswordHash         string     `json:"-"`
	IsEmailVerified      bool       `json:"is_email_verified"`
	EmailVerifiedAt      *time.Time `json:"email_verified_at,omitempty"`
	HasDefaultPassword   bool       `json:"has_default_password"`
	MustChangePassword   bool       `json:"must_change_password"`
	LastPasswordChangeAt *time.Time `json:"last_password_change_at,omitempty"`
	RememberTokenHash    *string    `json:"-"`
	Roles                []string   `json:"roles,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// HasRole reporta si el usuario tiene asignado el rol indicado.
func (u User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r == name {
			return true
		}
	}
	return false
}
