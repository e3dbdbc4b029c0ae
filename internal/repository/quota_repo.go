package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tube-archive/internal/domain"
)

// QuotaRepository define el contrato de persistencia para cuotas mensuales.
// Las operaciones que compiten bajo concurrencia (reset perezoso de mes,
// incremento condicionado) son una sola sentencia atomica cada una.
type QuotaRepository interface {
	// GetOrCreateCurrent crea la fila si no existe y resetea el contador si
	// current_month quedo viejo, todo en un solo upsert.
	GetOrCreateCurrent(ctx context.Context, userID, month string, defaultLimit int) (domain.ApiQuota, error)
	// Consume incrementa usage_count solo si la cuota del mes lo permite.
	// Devuelve la fila resultante y si el incremento ocurrio.
	Consume(ctx context.Context, userID, month string) (domain.ApiQuota, bool, error)
	SetUnlimited(ctx context.Context, userID string) error
	// ResetStale barre todas las filas con current_month distinto del actual.
	ResetStale(ctx context.Context, month string) (int64, error)
}

const quotaColumns = `user_id, current_month, usage_count, monthly_limit, is_unlimited, updated_at`

// PgQuotaRepository implementa QuotaRepository usando pgxpool.
type PgQuotaRepository struct {
	pool *pgxpool.Pool
}

func NewPgQuotaRepository(pool *pgxpool.Pool) *PgQuotaRepository {
	return &PgQuotaRepository{pool: pool}
}

func (r *PgQuotaRepository) GetOrCreateCurrent(ctx context.Context, userID, month string, defaultLimit int) (domain.ApiQuota, error) {
	// El upsert resuelve alta perezosa y rollover de mes en una sentencia,
	// asi dos requests simultaneos en el instante del cambio de mes no
	// pueden leer estado viejo.
	query := `
		INSERT INTO api_quotas (user_id, current_month, usage_count, monthly_limit, updated_at)
		VALUES ($1, $2, 0, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET
			usage_count = CASE
				WHEN api_quotas.current_month = EXCLUDED.current_month THEN api_quotas.usage_count
				ELSE 0
			END,
			current_month = EXCLUDED.current_month,
			updated_at = now()
		RETURNING ` + quotaColumns
	var q domain.ApiQuota
	err := r.pool.QueryRow(ctx, query, userID, month, defaultLimit).
		Scan(&q.UserID, &q.CurrentMonth, &q.UsageCount, &q.MonthlyLimit, &q.IsUnlimited, &q.UpdatedAt)
	return q, err
}

func (r *PgQuotaRepository) Consume(ctx context.Context, userID, month string) (domain.ApiQuota, bool, error) {
	query := `
		UPDATE api_quotas
		SET usage_count = usage_count + 1, updated_at = now()
		WHERE user_id = $1
			AND current_month = $2
			AND (is_unlimited OR usage_count < monthly_limit)
		RETURNING ` + quotaColumns
	var q domain.ApiQuota
	err := r.pool.QueryRow(ctx, query, userID, month).
		Scan(&q.UserID, &q.CurrentMonth, &q.UsageCount, &q.MonthlyLimit, &q.IsUnlimited, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Sin fila actualizada: cuota agotada o mes corrido entre medio.
		return domain.ApiQuota{}, false, nil
	}
	if err != nil {
		return domain.ApiQuota{}, false, err
	}
	return q, true, nil
}

func (r *PgQuotaRepository) SetUnlimited(ctx context.Context, userID string) error {
	const query = `
		INSERT INTO api_quotas (user_id, current_month, usage_count, is_unlimited, updated_at)
		VALUES ($1, to_char(now() AT TIME ZONE 'UTC', 'YYYY-MM'), 0, TRUE, now())
		ON CONFLICT (user_id) DO UPDATE SET is_unlimited = TRUE, updated_at = now()
	`
	_, err := r.pool.Exec(ctx, query, userID)
	return err
}

func (r *PgQuotaRepository) ResetStale(ctx context.Context, month string) (int64, error) {
	const query = `
		UPDATE api_quotas
		SET usage_count = 0, current_month = $1, updated_at = now()
		WHERE current_month <> $1
	`
	tag, err := r.pool.Exec(ctx, query, month)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
