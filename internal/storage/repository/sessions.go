package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/datagate/internal/models"
)

// CreateSession открывает сессию пользователя со сроком жизни ttl.
// Сессия с ttl <= 0 истекает сразу.
func (s *Storage) CreateSession(ctx context.Context, userID int64, ttl time.Duration) (*models.Session, error) {
	const op = "storage.CreateSession"

	tok, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := s.clock()
	session := &models.Session{
		UserID:    userID,
		Token:     tok,
		CreatedAt: now,
		ExpiresAt: now.Add(max(ttl, 0)),
	}
	res, err := s.db.Execute(ctx, queryInsertSession, session.UserID, session.Token, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	session.ID = res.LastInsertID
	return session, nil
}

// GetSession возвращает действующую сессию по токену. Истёкшая или
// удалённая сессия возвращается как nil.
func (s *Storage) GetSession(ctx context.Context, sessionToken string) (*models.Session, error) {
	const op = "storage.GetSession"

	row, err := s.selectOne(ctx, querySessionByToken, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if row == nil {
		return nil, nil
	}
	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// Истечение вычисляется при чтении, строка в базе остаётся.
	if session.Expired(s.clock()) {
		return nil, nil
	}
	return session, nil
}

// DeleteSession удаляет сессию (выход). false, если сессии не было.
func (s *Storage) DeleteSession(ctx context.Context, sessionToken string) (bool, error) {
	const op = "storage.DeleteSession"
	return s.executeAffected(ctx, op, queryDeleteSession, sessionToken)
}
