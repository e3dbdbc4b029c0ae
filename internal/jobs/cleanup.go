package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tube-archive/internal/service"
)

// TokenCleanupJob barre periodicamente las dos tablas de tokens, borrando
// filas mas viejas que la ventana de retencion sin importar su estado.
type TokenCleanupJob struct {
	logger             *zap.Logger
	verificationTokens *service.TokenService
	resetTokens        *service.TokenService
	retention          time.Duration
	interval           time.Duration
}

func NewTokenCleanupJob(logger *zap.Logger, verificationTokens, resetTokens *service.TokenService) *TokenCleanupJob {
	return &TokenCleanupJob{
		logger:             logger,
		verificationTokens: verificationTokens,
		resetTokens:        resetTokens,
		retention:          7 * 24 * time.Hour,
		interval:           24 * time.Hour,
	}
}

// Start corre una pasada inmediata y luego repite en el intervalo
// configurado hasta que ctx se cancele.
func (j *TokenCleanupJob) Start(ctx context.Context) {
	j.runOnce(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *TokenCleanupJob) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	verCount, err := j.verificationTokens.CleanupExpired(runCtx, j.retention)
	if err != nil {
		j.logger.Warn("verification token cleanup failed", zap.Error(err))
	}
	resetCount, err := j.resetTokens.CleanupExpired(runCtx, j.retention)
	if err != nil {
		j.logger.Warn("reset token cleanup failed", zap.Error(err))
	}
	if verCount > 0 || resetCount > 0 {
		j.logger.Info("token cleanup sweep",
			zap.Int64("verification_deleted", verCount),
			zap.Int64("reset_deleted", resetCount),
		)
	}
}

// QuotaSweepJob resetea en batch las cuotas con mes vencido. Es una
// conveniencia: el reset perezoso por request ya garantiza correccion.
type QuotaSweepJob struct {
	logger   *zap.Logger
	quotas   *service.QuotaService
	interval time.Duration
}

func NewQuotaSweepJob(logger *zap.Logger, quotas *service.QuotaService) *QuotaSweepJob {
	return &QuotaSweepJob{
		logger:   logger,
		quotas:   quotas,
		interval: time.Hour,
	}
}

// Start repite el barrido en el intervalo configurado hasta cancelar ctx.
func (j *QuotaSweepJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			if _, err := j.quotas.ResetMonthlyQuota(runCtx); err != nil {
				j.logger.Warn("quota sweep failed", zap.Error(err))
			}
			cancel()
		}
	}
}
