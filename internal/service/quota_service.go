package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tube-archive/internal/domain"
	"tube-archive/internal/repository"
)

// QuotaUsage es la foto de cuota que se devuelve al caller.
type QuotaUsage struct {
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	Unlimited bool `json:"unlimited"`
}

// QuotaService implementa la contabilidad mensual de importaciones.
type QuotaService struct {
	logger       *zap.Logger
	quotas       repository.QuotaRepository
	defaultLimit int
}

func NewQuotaService(logger *zap.Logger, quotas repository.QuotaRepository, defaultLimit int) *QuotaService {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &QuotaService{
		logger:       logger,
		quotas:       quotas,
		defaultLimit: defaultLimit,
	}
}

// CheckQuota evalua la cuota vigente del usuario. La fila se crea perezosa
// en el primer chequeo, y un mes viejo se resetea dentro del mismo upsert
// que la lee, asi dos requests simultaneos en el rollover no ven estado
// stale. Los administradores no tienen concepto de cuota.
func (s *QuotaService) CheckQuota(ctx context.Context, user domain.User) (bool, QuotaUsage, error) {
	if BypassesQuota(&user) {
		return true, QuotaUsage{Remaining: -1, Unlimited: true}, nil
	}

	month := domain.QuotaMonth(time.Now())
	q, err := s.quotas.GetOrCreateCurrent(ctx, user.ID, month, s.defaultLimit)
	if err != nil {
		return false, QuotaUsage{}, err
	}
	usage := usageOf(q)
	allowed := q.IsUnlimited || q.UsageCount < q.MonthlyLimit
	return allowed, usage, nil
}

// Consume incrementa el contador en exactamente 1 con un UPDATE condicionado
// en el storage: N consumidores concurrentes nunca sobre-cuentan ni
// sub-rechazan. Administradores pasan sin tocar fila alguna.
func (s *QuotaService) Consume(ctx context.Context, user domain.User) (QuotaUsage, error) {
	if BypassesQuota(&user) {
		return QuotaUsage{Remaining: -1, Unlimited: true}, nil
	}

	month := domain.QuotaMonth(time.Now())
	// El upsert previo garantiza fila presente y mes al dia.
	q, err := s.quotas.GetOrCreateCurrent(ctx, user.ID, month, s.defaultLimit)
	if err != nil {
		return QuotaUsage{}, err
	}

	updated, ok, err := s.quotas.Consume(ctx, user.ID, month)
	if err != nil {
		return QuotaUsage{}, err
	}
	if !ok {
		return usageOf(q), &QuotaExceededError{
			CurrentUsage: q.UsageCount,
			Limit:        q.MonthlyLimit,
			Suggestion:   MsgQuotaSuggestion,
		}
	}
	return usageOf(updated), nil
}

// ResetMonthlyQuota es el barrido batch programado; devuelve cuantas filas
// reseteo. La correccion no depende de el: el reset perezoso de CheckQuota
// alcanza aunque el barrido nunca corra.
func (s *QuotaService) ResetMonthlyQuota(ctx context.Context) (int64, error) {
	month := domain.QuotaMonth(time.Now())
	count, err := s.quotas.ResetStale(ctx, month)
	if err != nil {
		return 0, err
	}
	if count > 0 && s.logger != nil {
		s.logger.Info("monthly quota sweep", zap.Int64("reset_rows", count), zap.String("month", month))
	}
	return count, nil
}

// GrantUnlimited fija is_unlimited=true de forma permanente; no hay vuelta
// atras ni re-chequeo contra monthly_limit despues de esto.
func (s *QuotaService) GrantUnlimited(ctx context.Context, userID string) error {
	return s.quotas.SetUnlimited(ctx, userID)
}

func usageOf(q domain.ApiQuota) QuotaUsage {
	return QuotaUsage{
		Used:      q.UsageCount,
		Limit:     q.MonthlyLimit,
		Remaining: q.Remaining(),
		Unlimited: q.IsUnlimited,
	}
}
