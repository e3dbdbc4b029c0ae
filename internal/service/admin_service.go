package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"tube-archive/internal/domain"
	"tube-archive/internal/repository"
)

// AdminService expone la gestion de usuarios del panel de administracion,
// con la guarda de auto-modificacion aplicada en el borde del servicio.
type AdminService struct {
	logger *zap.Logger
	users  repository.UserRepository
	roles  repository.RoleRepository
}

func NewAdminService(logger *zap.Logger, users repository.UserRepository, roles repository.RoleRepository) *AdminService {
	return &AdminService{
		logger: logger,
		users:  users,
		roles:  roles,
	}
}

// ListUsers devuelve todos los usuarios con sus roles; solo administradores.
func (s *AdminService) ListUsers(ctx context.Context, acting domain.User) ([]domain.User, error) {
	if !CanViewAny(&acting) {
		return nil, ErrPermissionDenied
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		names, err := s.roles.NamesForUser(ctx, users[i].ID)
		if err != nil {
			return nil, err
		}
		users[i].Roles = names
	}
	return users, nil
}

// UpdateRole reemplaza el rol del usuario objetivo. Un administrador nunca
// puede cambiarse el rol a si mismo, ni siquiera a uno menor.
func (s *AdminService) UpdateRole(ctx context.Context, acting domain.User, targetID string, roleID int) (domain.User, error) {
	if !IsAdmin(&acting) {
		return domain.User{}, ErrPermissionDenied
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	if err := CanUpdateRole(&acting, &target); err != nil {
		return domain.User{}, err
	}

	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrInvalidRole
		}
		return domain.User{}, err
	}

	if err := s.roles.Replace(ctx, target.ID, role.ID); err != nil {
		return domain.User{}, err
	}
	if s.logger != nil {
		s.logger.Info("user role updated",
			zap.String("acting_id", acting.ID),
			zap.String("target_id", target.ID),
			zap.String("role", role.Name),
		)
	}

	target.Roles = []string{role.Name}
	return target, nil
}

// DeleteUser borra la cuenta objetivo con la misma regla de auto-exclusion.
func (s *AdminService) DeleteUser(ctx context.Context, acting domain.User, targetID string) error {
	if !IsAdmin(&acting) {
		return ErrPermissionDenied
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if err := CanDelete(&acting, &target); err != nil {
		return err
	}
	return s.users.Delete(ctx, target.ID)
}
