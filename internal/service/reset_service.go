package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"tube-archive/internal/email"
	"tube-archive/internal/repository"
)

// resetRepo agrega al contrato comun el canje transaccional (borrado duro
// del token + escritura de la password).
type resetRepo interface {
	repository.TokenRecordRepository
	Redeem(ctx context.Context, tokenID, userID, passwordHash string, now time.Time) (bool, error)
}

// ResetService implementa el flujo de reseteo de password.
type ResetService struct {
	logger      *zap.Logger
	users       repository.UserRepository
	tokens      *TokenService
	tokenRepo   resetRepo
	limiter     RateLimiter
	emailSender email.Sender
	policy      PasswordPolicy
	baseURL     string
}

func NewResetService(
	logger *zap.Logger,
	users repository.UserRepository,
	tokenRepo resetRepo,
	limiter RateLimiter,
	emailSender email.Sender,
	policy PasswordPolicy,
	baseURL string,
) *ResetService {
	if limiter == nil {
		limiter = NewMemoryRateLimiter(time.Hour, 3)
	}
	return &ResetService{
		logger:      logger,
		users:       users,
		tokens:      NewTokenService(tokenRepo),
		tokenRepo:   tokenRepo,
		limiter:     limiter,
		emailSender: emailSender,
		policy:      policy,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

// RequestReset responde exito tambien para emails desconocidos: desde afuera
// no se puede distinguir si la cuenta existe. Solo el rate limit es visible.
func (s *ResetService) RequestReset(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return ErrInvalidEmail
	}

	if allowed, retryAfter := s.limiter.Allow("pwreset:" + emailAddr); !allowed {
		return &RateLimitedError{RetryAfter: retryAfter}
	}

	if _, err := s.users.GetByEmail(ctx, emailAddr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Sin efectos observables para cuentas inexistentes.
			return nil
		}
		return err
	}

	// El Insert del repo de reseteo reemplaza al token vivo anterior:
	// un solo token valido por email.
	raw, rec, err := s.tokens.Issue(ctx, emailAddr)
	if err != nil {
		return err
	}

	link := s.resetLink(emailAddr, raw)
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.emailSender.SendPasswordResetLink(sendCtx, emailAddr, link, rec.ExpiresAt); err != nil {
			if s.logger != nil {
				s.logger.Warn("send password reset link failed", zap.Error(err), zap.String("email", emailAddr))
			}
		}
	}()
	return nil
}

// Reset canjea el token y aplica la password nueva. Todas las fallas de
// token (inexistente, vencido, usado) colapsan en ErrInvalidOrExpiredToken
// para no filtrar estado del token a un atacante.
func (s *ResetService) Reset(ctx context.Context, emailAddr, rawToken, newPassword, confirmation string) error {
	emailAddr = normalizeEmail(emailAddr)

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInvalidOrExpiredToken
		}
		return err
	}

	rec, err := s.tokens.Validate(ctx, emailAddr, rawToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenNotFound),
			errors.Is(err, ErrTokenExpired),
			errors.Is(err, ErrTokenAlreadyUsed):
			return ErrInvalidOrExpiredToken
		default:
			return err
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

	ok, err := s.tokenRepo.Redeem(ctx, rec.ID, user.ID, hash, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOrExpiredToken
	}
	return nil
}

func (s *ResetService) resetLink(emailAddr, rawToken string) string {
	v := url.Values{}
	v.Set("email", emailAddr)
	v.Set("token", rawToken)
	return s.baseURL + "/password/reset?" + v.Encode()
}
