package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/datagate/internal/models"
)

// CreatePasswordResetToken выпускает одноразовый токен сброса пароля со сроком жизни ttl.
func (s *Storage) CreatePasswordResetToken(ctx context.Context, userID int64, ttl time.Duration) (*models.PasswordResetToken, error) {
	const op = "storage.CreatePasswordResetToken"

	tok, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := s.clock()
	t := &models.PasswordResetToken{
		UserID:    userID,
		Token:     tok,
		CreatedAt: now,
		ExpiresAt: now.Add(max(ttl, 0)),
	}
	res, err := s.db.Execute(ctx, queryInsertResetToken, t.UserID, t.Token, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	t.ID = res.LastInsertID
	return t, nil
}

// GetPasswordResetToken возвращает токен, если он не использован и не истёк, иначе nil.
func (s *Storage) GetPasswordResetToken(ctx context.Context, resetToken string) (*models.PasswordResetToken, error) {
	const op = "storage.GetPasswordResetToken"

	row, err := s.selectOne(ctx, queryResetTokenByToken, resetToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if row == nil {
		return nil, nil
	}
	t, err := scanResetToken(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !t.Redeemable(s.clock()) {
		return nil, nil
	}
	return t, nil
}

// MarkTokenUsed погашает токен. true только для вызова, который действительно
// перевёл токен в used: повторное или конкурентное погашение, как и
// истёкший токен, дают false.
func (s *Storage) MarkTokenUsed(ctx context.Context, resetToken string) (bool, error) {
	const op = "storage.MarkTokenUsed"

	res, err := s.db.Execute(ctx, queryMarkTokenUsed, resetToken, s.clock())
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return res.RowsAffected == 1, nil
}
