package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tube-archive/internal/domain"
)

// TokenRecordRepository define el contrato comun de persistencia para tokens
// de seguridad (verificacion de email y reseteo de password).
type TokenRecordRepository interface {
	// Insert guarda un token nuevo. La implementacion de reseteo reemplaza
	// cualquier token vivo para el mismo email.
	Insert(ctx context.Context, rec domain.SecurityToken) error
	FindByHash(ctx context.Context, email, tokenHash string) (domain.SecurityToken, error)
	// MarkUsed fija used_at solo si seguia nulo; devuelve si este caller gano.
	MarkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

const tokenColumns = `id, email, token_hash, created_at, expires_at, used_at`

// PgVerificationTokenRepository persiste tokens de verificacion de email.
// Se permiten varios tokens vivos por email (reenvios).
type PgVerificationTokenRepository struct {
	pool *pgxpool.Pool
}

func NewPgVerificationTokenRepository(pool *pgxpool.Pool) *PgVerificationTokenRepository {
	return &PgVerificationTokenRepository{pool: pool}
}

func (r *PgVerificationTokenRepository) Insert(ctx context.Context, rec domain.SecurityToken) error {
	const query = `
		INSERT INTO email_verification_tokens (id, email, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, rec.ID, rec.Email, rec.TokenHash, rec.CreatedAt, rec.ExpiresAt)
	return err
}

func (r *PgVerificationTokenRepository) FindByHash(ctx context.Context, email, tokenHash string) (domain.SecurityToken, error) {
	query := `SELECT ` + tokenColumns + `
		FROM email_verification_tokens
		WHERE lower(email) = lower($1) AND token_hash = $2`
	var t domain.SecurityToken
	err := r.pool.QueryRow(ctx, query, email, tokenHash).
		Scan(&t.ID, &t.Email, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt)
	return t, err
}

func (r *PgVerificationTokenRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	const query = `
		UPDATE email_verification_tokens
		SET used_at = $2
		WHERE id = $1 AND used_at IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, id, usedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgVerificationTokenRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM email_verification_tokens WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CompleteVerification consume el token y deja al usuario verificado con su
// password nueva dentro de una sola transaccion. Devuelve false si otro
// request ya habia consumido el token o el usuario ya estaba verificado.
func (r *PgVerificationTokenRepository) CompleteVerification(ctx context.Context, tokenID, userID, passwordHash string, now time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE email_verification_tokens
		SET used_at = $2
		WHERE id = $1 AND used_at IS NULL
	`, tokenID, now)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	tag, err = tx.Exec(ctx, `
		UPDATE users
		SET is_email_verified = TRUE,
			email_verified_at = $2,
			password_hash = $3,
			has_default_password = FALSE,
			must_change_password = FALSE,
			last_password_change_at = $2
		WHERE id = $1 AND is_email_verified = FALSE
	`, userID, now, passwordHash)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	return true, tx.Commit(ctx)
}

// PgResetTokenRepository persiste tokens de reseteo de password.
// Un unico token vivo por email: Insert reemplaza al anterior.
type PgResetTokenRepository struct {
	pool *pgxpool.Pool
}

func NewPgResetTokenRepository(pool *pgxpool.Pool) *PgResetTokenRepository {
	return &PgResetTokenRepository{pool: pool}
}

func (r *PgResetTokenRepository) Insert(ctx context.Context, rec domain.SecurityToken) error {
	const query = `
		INSERT INTO password_reset_tokens (id, email, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET
			id = EXCLUDED.id,
			token_hash = EXCLUDED.token_hash,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at,
			used_at = NULL
	`
	_, err := r.pool.Exec(ctx, query, rec.ID, rec.Email, rec.TokenHash, rec.CreatedAt, rec.ExpiresAt)
	return err
}

func (r *PgResetTokenRepository) FindByHash(ctx context.Context, email, tokenHash string) (domain.SecurityToken, error) {
	query := `SELECT ` + tokenColumns + `
		FROM password_reset_tokens
		WHERE lower(email) = lower($1) AND token_hash = $2`
	var t domain.SecurityToken
	err := r.pool.QueryRow(ctx, query, email, tokenHash).
		Scan(&t.ID, &t.Email, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt)
	return t, err
}

func (r *PgResetTokenRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	const query = `
		UPDATE password_reset_tokens
		SET used_at = $2
		WHERE id = $1 AND used_at IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, id, usedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgResetTokenRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM password_reset_tokens WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Redeem borra el token (uso unico, borrado duro) y escribe la password nueva
// en una sola transaccion. Devuelve false si el token ya no existia.
func (r *PgResetTokenRepository) Redeem(ctx context.Context, tokenID, userID, passwordHash string, now time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM password_reset_tokens WHERE id = $1`, tokenID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	tag, err = tx.Exec(ctx, `
		UPDATE users
		SET password_hash = $2,
			has_default_password = FALSE,
			must_change_password = FALSE,
			last_password_change_at = $3
		WHERE id = $1
	`, userID, passwordHash, now)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	return true, tx.Commit(ctx)
}
