package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tube-archive/internal/domain"
)

// IdentityVerificationRepository persiste solicitudes de cupo ilimitado.
type IdentityVerificationRepository interface {
	Create(ctx context.Context, v domain.IdentityVerification) error
	GetByID(ctx context.Context, id string) (domain.IdentityVerification, error)
	ListByStatus(ctx context.Context, status string) ([]domain.IdentityVerification, error)
	// Review fija el estado final solo si la solicitud seguia pendiente.
	Review(ctx context.Context, id, status string, notes *string, reviewedAt time.Time) (bool, error)
}

const identityColumns = `id, user_id, method, status, notes, submitted_at, reviewed_at`

// PgIdentityVerificationRepository implementa el contrato usando pgxpool.
type PgIdentityVerificationRepository struct {
	pool *pgxpool.Pool
}

func NewPgIdentityVerificationRepository(pool *pgxpool.Pool) *PgIdentityVerificationRepository {
	return &PgIdentityVerificationRepository{pool: pool}
}

func (r *PgIdentityVerificationRepository) Create(ctx context.Context, v domain.IdentityVerification) error {
	const query = `
		INSERT INTO identity_verifications (id, user_id, method, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, v.ID, v.UserID, v.Method, v.Status, v.SubmittedAt)
	return err
}

func (r *PgIdentityVerificationRepository) GetByID(ctx context.Context, id string) (domain.IdentityVerification, error) {
	query := `SELECT ` + identityColumns + ` FROM identity_verifications WHERE id = $1`
	var v domain.IdentityVerification
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&v.ID, &v.UserID, &v.Method, &v.Status, &v.Notes, &v.SubmittedAt, &v.ReviewedAt)
	return v, err
}

func (r *PgIdentityVerificationRepository) ListByStatus(ctx context.Context, status string) ([]domain.IdentityVerification, error) {
	query := `SELECT ` + identityColumns + `
		FROM identity_verifications
		WHERE status = $1
		ORDER BY submitted_at`
	rows, err := r.pool.Query(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.IdentityVerification
	for rows.Next() {
		var v domain.IdentityVerification
		if err := rows.Scan(&v.ID, &v.UserID, &v.Method, &v.Status, &v.Notes, &v.SubmittedAt, &v.ReviewedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *PgIdentityVerificationRepository) Review(ctx context.Context, id, status string, notes *string, reviewedAt time.Time) (bool, error) {
	const query = `
		UPDATE identity_verifications
		SET status = $2, notes = $3, reviewed_at = $4
		WHERE id = $1 AND status = $5
	`
	tag, err := r.pool.Exec(ctx, query, id, status, notes, reviewedAt, domain.VerificationStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
