package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrDuplicateEmail         = errors.New("duplicate email")
	ErrInvalidEmail           = errors.New("invalid email")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrEmailNotVerified       = errors.New("email not verified")
	ErrAlreadyVerified        = errors.New("email already verified")
	ErrTokenNotFound          = errors.New("token not found")
	ErrTokenExpired           = errors.New("token expired")
	ErrTokenAlreadyUsed       = errors.New("token already used")
	ErrInvalidOrExpiredToken  = errors.New("invalid or expired token")
	ErrPasswordMismatch       = errors.New("password confirmation mismatch")
	ErrInvalidCurrentPassword = errors.New("current password incorrect")
	ErrPermissionDenied       = errors.New("permission denied")
	// ErrForbiddenSelfModification es distinto de ErrPermissionDenied a
	// proposito: cambiar el propio rol o borrarse a si mismo se niega
	// siempre, incluso para administradores.
	ErrForbiddenSelfModification = errors.New("self modification forbidden")
	ErrInvalidRole               = errors.New("invalid role")
	ErrAlreadyReviewed           = errors.New("verification already reviewed")
)

// RateLimitedError lleva el tiempo de espera computable hasta el reintento.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// QuotaExceededError lleva el detalle de uso que el borde devuelve al caller.
type QuotaExceededError struct {
	CurrentUsage int
	Limit        int
	Suggestion   string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly quota exceeded (%d/%d)", e.CurrentUsage, e.Limit)
}

// WeakPasswordError lista todas las condiciones de fuerza que fallaron.
type WeakPasswordError struct {
	Kinds []StrengthErrorKind
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("weak password: %v", e.Kinds)
}
