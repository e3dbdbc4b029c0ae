package domain

import "time"

// SecurityToken representa un desafio pendiente (verificacion de email o
// reseteo de password). Solo se persiste el sha256 del token crudo.
type SecurityToken struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	TokenHash string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// IsExpired reporta si el token ya vencio respecto de now.
func (t SecurityToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsUsed reporta si el token ya fue canjeado.
func (t SecurityToken) IsUsed() bool {
	return t.UsedAt != nil
}
