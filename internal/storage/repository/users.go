package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/datagate/internal/models"
)

// CreateUser хеширует пароль и сохраняет нового пользователя, возвращает его ID.
// Повтор email возвращает ошибку, совместимую с storage.ErrConstraintViolation.
func (s *Storage) CreateUser(ctx context.Context, email, plainPassword string, fullName *string) (int64, error) {
	const op = "storage.CreateUser"

	hash, err := s.hasher.Hash(plainPassword)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	res, err := s.db.Execute(ctx, queryInsertUser, email, hash, fullName, s.clock())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return res.LastInsertID, nil
}

// GetUserByEmail возвращает пользователя по email или nil, если его нет.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	return s.getUser(ctx, op, queryUserByEmail, email)
}

// GetUserByID возвращает пользователя по ID или nil, если его нет.
func (s *Storage) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.GetUserByID"
	return s.getUser(ctx, op, queryUserByID, id)
}

func (s *Storage) getUser(ctx context.Context, op, query string, arg any) (*models.User, error) {
	row, err := s.selectOne(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if row == nil {
		return nil, nil
	}
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpdatePassword хеширует и сохраняет новый пароль. false, если пользователя нет.
func (s *Storage) UpdatePassword(ctx context.Context, userID int64, plainPassword string) (bool, error) {
	const op = "storage.UpdatePassword"

	hash, err := s.hasher.Hash(plainPassword)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return s.executeAffected(ctx, op, queryUpdatePassword, hash, userID)
}

// SetUserActive включает или выключает учётную запись.
func (s *Storage) SetUserActive(ctx context.Context, userID int64, active bool) (bool, error) {
	const op = "storage.SetUserActive"
	return s.executeAffected(ctx, op, querySetUserActive, active, userID)
}

// MarkEmailVerified отмечает email пользователя подтверждённым.
func (s *Storage) MarkEmailVerified(ctx context.Context, userID int64) (bool, error) {
	const op = "storage.MarkEmailVerified"
	return s.executeAffected(ctx, op, queryVerifyEmail, userID)
}
