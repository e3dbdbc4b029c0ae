package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"tube-archive/internal/domain"
)

// RoleRepository define el contrato de persistencia para roles y su pivot.
type RoleRepository interface {
	GetByID(ctx context.Context, id int) (domain.Role, error)
	GetByName(ctx context.Context, name string) (domain.Role, error)
	NamesForUser(ctx context.Context, userID string) ([]string, error)
	Attach(ctx context.Context, userID string, roleID int) error
	// Replace deja al usuario con exactamente el rol indicado.
	Replace(ctx context.Context, userID string, roleID int) error
}

// PgRoleRepository implementa RoleRepository usando pgxpool.
type PgRoleRepository struct {
	pool *pgxpool.Pool
}

func NewPgRoleRepository(pool *pgxpool.Pool) *PgRoleRepository {
	return &PgRoleRepository{pool: pool}
}

func (r *PgRoleRepository) GetByID(ctx context.Context, id int) (domain.Role, error) {
	var role domain.Role
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name)
	return role, err
}

func (r *PgRoleRepository) GetByName(ctx context.Context, name string) (domain.Role, error) {
	var role domain.Role
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM roles WHERE name = $1`, name).
		Scan(&role.ID, &role.Name)
	return role, err
}

func (r *PgRoleRepository) NamesForUser(ctx context.Context, userID string) ([]string, error) {
	const query = `
		SELECT r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.id
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *PgRoleRepository) Attach(ctx context.Context, userID string, roleID int) error {
	const query = `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, userID, roleID)
	return err
}

func (r *PgRoleRepository) Replace(ctx context.Context, userID string, roleID int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, userID, roleID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
