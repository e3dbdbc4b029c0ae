package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tube-archive/internal/domain"
	"tube-archive/internal/repository"
)

const (
	tokenTTL       = 24 * time.Hour
	tokenRetention = 7 * 24 * time.Hour
)

// TokenService implementa el ciclo de vida compartido de tokens seguros:
// emision, validacion, consumo y limpieza. El token crudo se devuelve una
// sola vez al emitir; solo su sha256 queda persistido.
type TokenService struct {
	tokens repository.TokenRecordRepository
	ttl    time.Duration
}

func NewTokenService(tokens repository.TokenRecordRepository) *TokenService {
	return &TokenService{tokens: tokens, ttl: tokenTTL}
}

// Issue genera un token crudo de 32 bytes de entropia (64 chars hex),
// persiste solo su hash y devuelve el crudo junto al registro.
func (s *TokenService) Issue(ctx context.Context, email string) (string, domain.SecurityToken, error) {
	raw, hash, err := generateSecureToken()
	if err != nil {
		return "", domain.SecurityToken{}, err
	}

	now := time.Now().UTC()
	rec := domain.SecurityToken{
		ID:        uuid.NewString(),
		Email:     email,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.tokens.Insert(ctx, rec); err != nil {
		return "", domain.SecurityToken{}, err
	}
	return raw, rec, nil
}

// Validate busca por hash+email y evalua estado. No marca el token usado:
// el caller confirma el consumo recien cuando la accion dependiente termino,
// asi un paso posterior fallido (ej. password debil) deja el token vivo.
func (s *TokenService) Validate(ctx context.Context, email, rawToken string) (domain.SecurityToken, error) {
	rec, err := s.tokens.FindByHash(ctx, email, hashToken(rawToken))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SecurityToken{}, ErrTokenNotFound
		}
		return domain.SecurityToken{}, err
	}
	if rec.IsUsed() {
		return domain.SecurityToken{}, ErrTokenAlreadyUsed
	}
	if rec.IsExpired(time.Now().UTC()) {
		return domain.SecurityToken{}, ErrTokenExpired
	}
	return rec, nil
}

// MarkUsed consume el token; el compare-and-set contra used_at IS NULL vive
// en el storage, de modo que dos canjes concurrentes dejan un solo ganador.
func (s *TokenService) MarkUsed(ctx context.Context, rec domain.SecurityToken) error {
	ok, err := s.tokens.MarkUsed(ctx, rec.ID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenAlreadyUsed
	}
	return nil
}

// CleanupExpired borra filas mas viejas que la ventana de retencion sin
// importar su estado. Corre fuera del camino de requests.
func (s *TokenService) CleanupExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = tokenRetention
	}
	return s.tokens.DeleteCreatedBefore(ctx, time.Now().UTC().Add(-retention))
}

func generateSecureToken() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(buf)
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
