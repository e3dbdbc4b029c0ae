package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"tube-archive/internal/domain"
	"tube-archive/internal/repository"
)

const (
	sessionTTL         = 24 * time.Hour
	rememberSessionTTL = 30 * 24 * time.Hour
)

// AuthService implementa login, logout y cambio de password sobre sesiones
// opacas del lado servidor.
type AuthService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	roles    repository.RoleRepository
	sessions SessionStore
	policy   PasswordPolicy
}

func NewAuthService(
	logger *zap.Logger,
	users repository.UserRepository,
	roles repository.RoleRepository,
	sessions SessionStore,
	policy PasswordPolicy,
) *AuthService {
	if sessions == nil {
		sessions = NewMemorySessionStore()
	}
	return &AuthService{
		logger:   logger,
		users:    users,
		roles:    roles,
		sessions: sessions,
		policy:   policy,
	}
}

// Login corre la maquina de estados de autenticacion. Email desconocido y
// password incorrecta devuelven el mismo ErrInvalidCredentials para no
// permitir enumeracion de cuentas.
func (s *AuthService) Login(ctx context.Context, emailAddr, password string, remember bool) (domain.User, string, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return domain.User{}, "", ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, "", ErrInvalidCredentials
		}
		return domain.User{}, "", err
	}
	if user.PasswordHash == "" || !s.policy.Verify(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !user.IsEmailVerified {
		return domain.User{}, "", ErrEmailNotVerified
	}

	names, err := s.roles.NamesForUser(ctx, user.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	user.Roles = names

	raw, hash, err := generateSecureToken()
	if err != nil {
		return domain.User{}, "", err
	}

	ttl := sessionTTL
	var rememberHash *string
	if remember {
		ttl = rememberSessionTTL
		rememberHash = &hash
	}
	if err := s.sessions.Store(raw, user.ID, ttl); err != nil {
		return domain.User{}, "", err
	}
	// remember=false limpia cualquier token persistente previo.
	if err := s.users.SetRememberToken(ctx, user.ID, rememberHash); err != nil {
		return domain.User{}, "", err
	}
	user.RememberTokenHash = rememberHash

	return user, raw, nil
}

// Logout invalida la sesion actual. Otras sesiones concurrentes del mismo
// usuario no se revocan.
func (s *AuthService) Logout(_ context.Context, sessionToken string) error {
	return s.sessions.Revoke(sessionToken)
}

// ResolveSession devuelve el usuario duenio de un token de sesion valido.
func (s *AuthService) ResolveSession(ctx context.Context, sessionToken string) (domain.User, error) {
	userID, ok, err := s.sessions.Get(sessionToken)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrInvalidCredentials
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	names, err := s.roles.NamesForUser(ctx, user.ID)
	if err != nil {
		return domain.User{}, err
	}
	user.Roles = names
	return user, nil
}

// ChangePassword valida y aplica una password nueva. En el cambio forzado de
// primer login no se exige la password actual; en el resto si.
func (s *AuthService) ChangePassword(ctx context.Context, user domain.User, currentPassword, newPassword, confirmation string) error {
	if !user.MustChangePassword {
		if currentPassword == "" || !s.policy.Verify(currentPassword, user.PasswordHash) {
			return ErrInvalidCurrentPassword
		}
	}
	if newPassword != confirmation {
		return ErrPasswordMismatch
	}
	if kinds := s.policy.StrengthErrors(newPassword); len(kinds) > 0 {
		return &WeakPasswordError{Kinds: kinds}
	}

	hash, err := s.policy.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.users.SetPassword(ctx, user.ID, hash, time.Now().UTC())
}
