package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"tube-archive/internal/domain"
	"tube-archive/internal/repository"
)

// IdentityService maneja solicitudes de verificacion de identidad. La
// revision es tarea del panel de administracion; la parte que importa aca es
// el contrato de aprobacion: flip permanente de la cuota a ilimitada.
type IdentityService struct {
	logger        *zap.Logger
	verifications repository.IdentityVerificationRepository
	quotas        *QuotaService
}

func NewIdentityService(logger *zap.Logger, verifications repository.IdentityVerificationRepository, quotas *QuotaService) *IdentityService {
	return &IdentityService{
		logger:        logger,
		verifications: verifications,
		quotas:        quotas,
	}
}

// Submit registra una solicitud pendiente.
func (s *IdentityService) Submit(ctx context.Context, userID, method string) (domain.IdentityVerification, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		method = "manual"
	}
	v := domain.IdentityVerification{
		ID:          uuid.NewString(),
		UserID:      userID,
		Method:      method,
		Status:      domain.VerificationStatusPending,
		SubmittedAt: time.Now().UTC(),
	}
	if err := s.verifications.Create(ctx, v); err != nil {
		return domain.IdentityVerification{}, err
	}
	return v, nil
}

// Review resuelve una solicitud pendiente. Aprobar es el unico camino que
// vuelve ilimitada la cuota del usuario.
func (s *IdentityService) Review(ctx context.Context, id string, approve bool, notes string) (domain.IdentityVerification, error) {
	v, err := s.verifications.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.IdentityVerification{}, ErrUserNotFound
		}
		return domain.IdentityVerification{}, err
	}

	status := domain.VerificationStatusRejected
	if approve {
		status = domain.VerificationStatusApproved
	}
	var notesPtr *string
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		notesPtr = &trimmed
	}

	now := time.Now().UTC()
	ok, err := s.verifications.Review(ctx, id, status, notesPtr, now)
	if err != nil {
		return domain.IdentityVerification{}, err
	}
	if !ok {
		return domain.IdentityVerification{}, ErrAlreadyReviewed
	}

	if approve {
		if err := s.quotas.GrantUnlimited(ctx, v.UserID); err != nil {
			return domain.IdentityVerification{}, err
		}
		if s.logger != nil {
			s.logger.Info("unlimited quota granted", zap.String("user_id", v.UserID), zap.String("verification_id", id))
		}
	}

	v.Status = status
	v.Notes = notesPtr
	v.ReviewedAt = &now
	return v, nil
}

// ListPending lista solicitudes esperando revision.
func (s *IdentityService) ListPending(ctx context.Context) ([]domain.IdentityVerification, error) {
	return s.verifications.ListByStatus(ctx, domain.VerificationStatusPending)
}
