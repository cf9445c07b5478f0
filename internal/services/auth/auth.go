// Package services содержит логику бизнес-уровня для работы с пользователями и аутентификацией.
//
// Сессии непрозрачные: токен хранится на сервере и проверяется по базе
// при каждом обращении, срок жизни фиксируется при создании.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/datagate/internal/config"
	"github.com/magabrotheeeer/datagate/internal/lib/password"
	"github.com/magabrotheeeer/datagate/internal/lib/sl"
	"github.com/magabrotheeeer/datagate/internal/models"
	"github.com/magabrotheeeer/datagate/internal/storage"
)

var (
	ErrUserExists         = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is deactivated")
	ErrUnauthorized       = errors.New("session is missing or expired")
	ErrInvalidToken       = errors.New("reset token is invalid, used or expired")
	ErrInvalidInput       = errors.New("invalid input")

	errPasswordTooLong = errors.New("password exceeds 72 bytes")
)

// maxPasswordBytes это предел bcrypt: он считает байты, а не символы.
const maxPasswordBytes = 72

// Repository описывает контракт хранилища, нужный сервису аутентификации.
type Repository interface {
	CreateUser(ctx context.Context, email, plainPassword string, fullName *string) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	UpdatePassword(ctx context.Context, userID int64, plainPassword string) (bool, error)

	CreateSession(ctx context.Context, userID int64, ttl time.Duration) (*models.Session, error)
	GetSession(ctx context.Context, sessionToken string) (*models.Session, error)
	DeleteSession(ctx context.Context, sessionToken string) (bool, error)

	CreatePasswordResetToken(ctx context.Context, userID int64, ttl time.Duration) (*models.PasswordResetToken, error)
	GetPasswordResetToken(ctx context.Context, resetToken string) (*models.PasswordResetToken, error)
	MarkTokenUsed(ctx context.Context, resetToken string) (bool, error)
}

// Notifier доставляет пользователю ссылку на сброс пароля.
type Notifier interface {
	PasswordReset(ctx context.Context, email, resetToken string, expiresAt time.Time) error
}

// SignupRequest данные регистрации.
type SignupRequest struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6,max=72"`
	FullName string `validate:"omitempty,max=200"`
}

// AuthService отвечает за регистрацию, вход, сессии и сброс пароля.
type AuthService struct {
	repo     Repository
	hasher   password.Hasher
	notifier Notifier
	validate *validator.Validate
	log      *slog.Logger

	sessionTTL    time.Duration
	resetTokenTTL time.Duration
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(repo Repository, hasher password.Hasher, notifier Notifier, cfg config.Auth, log *slog.Logger) *AuthService {
	return &AuthService{
		repo:          repo,
		hasher:        hasher,
		notifier:      notifier,
		validate:      validator.New(),
		log:           log,
		sessionTTL:    cfg.SessionTTL,
		resetTokenTTL: cfg.ResetTokenTTL,
	}
}

// Signup регистрирует пользователя и сразу открывает для него сессию.
func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*models.User, *models.Session, error) {
	const op = "services.auth.Signup"

	req.Email = normalizeEmail(req.Email)
	if err := s.validate.Struct(req); err != nil {
		return nil, nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidInput, err)
	}
	if len(req.Password) > maxPasswordBytes {
		return nil, nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidInput, errPasswordTooLong)
	}

	var fullName *string
	if name := strings.TrimSpace(req.FullName); name != "" {
		fullName = &name
	}
	id, err := s.repo.CreateUser(ctx, req.Email, req.Password, fullName)
	if errors.Is(err, storage.ErrConstraintViolation) {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrUserExists)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if user == nil {
		return nil, nil, fmt.Errorf("%s: user %d disappeared after insert", op, id)
	}
	session, err := s.repo.CreateSession(ctx, id, s.sessionTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("user signed up", slog.Int64("user_id", id))
	return user, session, nil
}

// Login проверяет пароль и открывает новую сессию.
func (s *AuthService) Login(ctx context.Context, email, rawPassword string) (*models.Session, error) {
	const op = "services.auth.Login"

	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err = s.hasher.Compare(user.PasswordHash, rawPassword); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%s: %w", op, ErrInactiveUser)
	}

	session, err := s.repo.CreateSession(ctx, user.ID, s.sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return session, nil
}

// Logout удаляет сессию. Повторный выход ошибкой не считается.
func (s *AuthService) Logout(ctx context.Context, sessionToken string) error {
	const op = "services.auth.Logout"
	if _, err := s.repo.DeleteSession(ctx, sessionToken); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Authenticate возвращает активного пользователя, которому принадлежит сессия.
func (s *AuthService) Authenticate(ctx context.Context, sessionToken string) (*models.User, error) {
	const op = "services.auth.Authenticate"

	session, err := s.repo.GetSession(ctx, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if session == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	user, err := s.repo.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user == nil || !user.IsActive {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	return user, nil
}

// RequestPasswordReset выпускает токен сброса и отправляет уведомление.
// Для неизвестного email ничего не делает и возвращает nil,
// чтобы по ответу нельзя было проверить наличие учётной записи.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	const op = "services.auth.RequestPasswordReset"

	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidInput, err)
	}
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if user == nil {
		s.log.Debug("password reset requested for unknown email")
		return nil
	}

	t, err := s.repo.CreatePasswordResetToken(ctx, user.ID, s.resetTokenTTL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = s.notifier.PasswordReset(ctx, user.Email, t.Token, t.ExpiresAt); err != nil {
		s.log.Error("failed to send password reset notification", sl.Op(op), sl.Err(err), slog.Int64("user_id", user.ID))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ResetPassword погашает токен и устанавливает новый пароль. Токен
// погашается до смены пароля, поэтому из конкурентных попыток проходит одна.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	const op = "services.auth.ResetPassword"

	if err := s.validate.Var(newPassword, "required,min=6,max=72"); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidInput, err)
	}
	if len(newPassword) > maxPasswordBytes {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidInput, errPasswordTooLong)
	}
	t, err := s.repo.GetPasswordResetToken(ctx, resetToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if t == nil {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	redeemed, err := s.repo.MarkTokenUsed(ctx, resetToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !redeemed {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	if _, err = s.repo.UpdatePassword(ctx, t.UserID, newPassword); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("password reset", slog.Int64("user_id", t.UserID))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
