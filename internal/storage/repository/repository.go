// Package repository реализует операции над пользователями, сессиями,
// токенами сброса пароля и подписками поверх примитивов Select и Execute.
// Строки результатов преобразуются в структуры models на этой границе,
// наружу сырые строки не отдаются. Отсутствие записи возвращается как (nil, nil).
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/datagate/internal/lib/password"
	"github.com/magabrotheeeer/datagate/internal/lib/token"
	"github.com/magabrotheeeer/datagate/internal/storage"
)

var (
	// ErrInvalidTransition запрошен переход статуса, которого нет в жизненном цикле.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidStatus неизвестный статус подписки.
	ErrInvalidStatus = errors.New("invalid subscription status")
)

// Executor примитивы слоя доступа к данным.
type Executor interface {
	Select(ctx context.Context, query string, args ...any) ([]storage.Row, error)
	Execute(ctx context.Context, query string, args ...any) (storage.ExecResult, error)
}

// allower реализуется executor'ом с фильтром запросов.
type allower interface {
	Allow(queries ...string)
}

// Storage доменные операции хранилища.
type Storage struct {
	db       Executor
	hasher   password.Hasher
	now      func() time.Time
	newToken func() (string, error)
}

// Option настраивает Storage.
type Option func(*Storage)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

// WithTokenGenerator подменяет генератор токенов сессий и сброса пароля.
func WithTokenGenerator(gen func() (string, error)) Option {
	return func(s *Storage) { s.newToken = gen }
}

// New создаёт Storage. Собственные запросы, которые фильтр отклонил бы
// по шаблону, регистрируются в его списке доверенных.
func New(db Executor, hasher password.Hasher, opts ...Option) *Storage {
	s := &Storage{
		db:       db,
		hasher:   hasher,
		now:      time.Now,
		newToken: token.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	if a, ok := db.(allower); ok {
		a.Allow(trustedQueries...)
	}
	return s
}

func (s *Storage) clock() time.Time {
	return s.now().UTC()
}

// selectOne возвращает первую строку или nil, если строк нет.
func (s *Storage) selectOne(ctx context.Context, query string, args ...any) (storage.Row, error) {
	rows, err := s.db.Select(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// executeAffected выполняет запрос и сообщает, была ли затронута хотя бы одна строка.
func (s *Storage) executeAffected(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := s.db.Execute(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return res.RowsAffected > 0, nil
}
