package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"tube-archive/internal/domain"
	"tube-archive/internal/email"
	"tube-archive/internal/repository"
)

// verificationRepo agrega al contrato comun la operacion transaccional de
// completar la verificacion.
type verificationRepo interface {
	repository.TokenRecordRepository
	CompleteVerification(ctx context.Context, tokenID, userID, passwordHash string, now time.Time) (bool, error)
}

// VerificationService coordina registro y verificacion de email.
type VerificationService struct {
	logger      *zap.Logger
	users       repository.UserRepository
	roles       repository.RoleRepository
	tokens      *TokenService
	tokenRepo   verificationRepo
	limiter     RateLimiter
	emailSender email.Sender
	policy      PasswordPolicy
	baseURL     string
}

func NewVerificationService(
	logger *zap.Logger,
	users repository.UserRepository,
	roles repository.RoleRepository,
	tokenRepo verificationRepo,
	limiter RateLimiter,
	emailSender email.Sender,
	policy PasswordPolicy,
	baseURL string,
) *VerificationService {
	if limiter == nil {
		limiter = NewMemoryRateLimiter(time.Hour, 3)
	}
	return &VerificationService{
		logger:      logger,
		users:       users,
		roles:       roles,
		tokens:      NewTokenService(tokenRepo),
		tokenRepo:   tokenRepo,
		limiter:     limiter,
		emailSender: emailSender,
		policy:      policy,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

// CheckRateLimit consulta el limite de emision de correos de verificacion
// (3 por hora movil por email).
func (s *VerificationService) CheckRateLimit(emailAddr string) (bool, time.Duration) {
	return s.limiter.Allow("verify:" + normalizeEmail(emailAddr))
}

// Register crea la cuenta sin verificar con la password por defecto del
// sistema y el rol regular_member, emite el token de verificacion y despacha
// el correo de forma asincrona.
func (s *VerificationService) Register(ctx context.Context, emailAddr, name string) (domain.User, domain.SecurityToken, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return domain.User{}, domain.SecurityToken{}, ErrInvalidEmail
	}

	if _, err := s.users.GetByEmail(ctx, emailAddr); err == nil {
		return domain.User{}, domain.SecurityToken{}, ErrDuplicateEmail
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.SecurityToken{}, err
	}

	defaultHash, err := s.policy.Hash(s.policy.DefaultPassword())
	if err != nil {
		return domain.User{}, domain.SecurityToken{}, err
	}

	user := domain.User{
		ID:                 uuid.NewString(),
		Email:              emailAddr,
		Name:               strings.TrimSpace(name),
		PasswordHash:       defaultHash,
		HasDefaultPassword: true,
		MustChangePassword: true,
		Roles:              []string{domain.RoleRegularMember},
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return domain.User{}, domain.SecurityToken{}, ErrDuplicateEmail
		}
		return domain.User{}, domain.SecurityToken{}, err
	}

	role, err := s.roles.GetByName(ctx, domain.RoleRegularMember)
	if err != nil {
		return domain.User{}, domain.SecurityToken{}, err
	}
	if err := s.roles.Attach(ctx, user.ID, role.ID); err != nil {
		return domain.User{}, domain.SecurityToken{}, err
	}

	rec, err := s.issueAndSend(ctx, emailAddr)
	if err != nil {
		return domain.User{}, domain.SecurityToken{}, err
	}
	return user, rec, nil
}

// Resend emite un token fresco para una cuenta aun sin verificar. Los tokens
// anteriores siguen vivos hasta usarse o vencer.
func (s *VerificationService) Resend(ctx context.Context, emailAddr string) (domain.SecurityToken, error) {
	emailAddr = normalizeEmail(emailAddr)
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SecurityToken{}, ErrUserNotFound
		}
		return domain.SecurityToken{}, err
	}
	if user.IsEmailVerified {
		return domain.SecurityToken{}, ErrAlreadyVerified
	}
	if allowed, retryAfter := s.CheckRateLimit(emailAddr); !allowed {
		return domain.SecurityToken{}, &RateLimitedError{RetryAfter: retryAfter}
	}
	return s.issueAndSend(ctx, emailAddr)
}

// ValidateToken evalua un token sin consumirlo. Si la cuenta ya esta
// verificada falla sin consultar el ciclo de vida: verificar es una
// transicion de ida unica.
func (s *VerificationService) ValidateToken(ctx context.Context, emailAddr, rawToken string) (domain.SecurityToken, error) {
	emailAddr = normalizeEmail(emailAddr)
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SecurityToken{}, ErrTokenNotFound
		}
		return domain.SecurityToken{}, err
	}
	if user.IsEmailVerified {
		return domain.SecurityToken{}, ErrAlreadyVerified
	}
	return s.tokens.Validate(ctx, emailAddr, rawToken)
}

// CompleteVerification valida token y password nueva, y de pasar todo deja
// al usuario verificado en una sola transaccion. Una password debil NO
// consume el token, asi el usuario puede reintentar con el mismo link.
func (s *VerificationService) CompleteVerification(ctx context.Context, emailAddr, rawToken, newPassword, confirmation string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	rec, err := s.ValidateToken(ctx, emailAddr, rawToken)
	if err != nil {
		return domain.User{}, err
	}
	if newPassword != confirmation {
		return domain.User{}, ErrPasswordMismatch
	}
	if kinds := s.policy.StrengthErrors(newPassword); len(kinds) > 0 {
		return domain.User{}, &WeakPasswordError{Kinds: kinds}
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		return domain.User{}, err
	}

	hash, err := s.policy.Hash(newPassword)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	ok, err := s.tokenRepo.CompleteVerification(ctx, rec.ID, user.ID, hash, now)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		// Otro request gano la carrera por este token.
		return domain.User{}, ErrTokenAlreadyUsed
	}

	user.IsEmailVerified = true
	user.EmailVerifiedAt = &now
	user.PasswordHash = hash
	user.HasDefaultPassword = false
	user.MustChangePassword = false
	user.LastPasswordChangeAt = &now
	return user, nil
}

func (s *VerificationService) issueAndSend(ctx context.Context, emailAddr string) (domain.SecurityToken, error) {
	raw, rec, err := s.tokens.Issue(ctx, emailAddr)
	if err != nil {
		return domain.SecurityToken{}, err
	}

	link := s.verificationLink(emailAddr, raw)
	// El request no espera al proveedor de correo: fallas se loguean y el
	// token queda valido igual.
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.emailSender.SendVerificationLink(sendCtx, emailAddr, link, rec.ExpiresAt); err != nil {
			if s.logger != nil {
				s.logger.Warn("send verification link failed", zap.Error(err), zap.String("email", emailAddr))
			}
		}
	}()
	return rec, nil
}

func (s *VerificationService) verificationLink(emailAddr, rawToken string) string {
	v := url.Values{}
	v.Set("email", emailAddr)
	v.Set("token", rawToken)
	return s.baseURL + "/api/auth/verify-email?" + v.Encode()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
