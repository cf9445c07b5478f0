// Package services содержит бизнес-логику управления подписками пользователей.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/datagate/internal/models"
)

var (
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrInvalidPlan          = errors.New("invalid plan type")
)

// SubscriptionRepository определяет методы для работы с подписками в хранилище.
type SubscriptionRepository interface {
	// CreateSubscription оформляет активную подписку на days дней.
	CreateSubscription(ctx context.Context, userID int64, planType string, days int) (*models.Subscription, error)
	// GetUserSubscription возвращает действующую подписку или nil.
	GetUserSubscription(ctx context.Context, userID int64) (*models.Subscription, error)
	// UpdateSubscriptionStatus меняет статус, false если подписка не найдена.
	UpdateSubscriptionStatus(ctx context.Context, subscriptionID int64, status string) (bool, error)
}

// SubscriptionService реализует бизнес-логику для работы с подписками.
type SubscriptionService struct {
	repo     SubscriptionRepository
	validate *validator.Validate
	days     int
	log      *slog.Logger
}

// NewSubscriptionService создает новый экземпляр SubscriptionService.
// days длительность новой подписки.
func NewSubscriptionService(repo SubscriptionRepository, days int, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		repo:     repo,
		validate: validator.New(),
		days:     days,
		log:      log,
	}
}

// Subscribe оформляет пользователю новую подписку на план planType.
func (s *SubscriptionService) Subscribe(ctx context.Context, userID int64, planType string) (*models.Subscription, error) {
	const op = "services.subscription.Subscribe"

	if err := s.validate.Var(planType, "required,alphanum,max=32"); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidPlan, err)
	}
	sub, err := s.repo.CreateSubscription(ctx, userID, planType, s.days)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("subscription created",
		slog.Int64("user_id", userID),
		slog.Int64("subscription_id", sub.ID),
		slog.String("plan", planType),
	)
	return sub, nil
}

// Current возвращает действующую подписку пользователя.
func (s *SubscriptionService) Current(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "services.subscription.Current"

	sub, err := s.repo.GetUserSubscription(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNoActiveSubscription)
	}
	return sub, nil
}

// Cancel отменяет действующую подписку пользователя. Чужую или уже
// отменённую подписку отменить нельзя.
func (s *SubscriptionService) Cancel(ctx context.Context, userID, subscriptionID int64) error {
	const op = "services.subscription.Cancel"

	current, err := s.repo.GetUserSubscription(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if current == nil || current.ID != subscriptionID {
		return fmt.Errorf("%s: %w", op, ErrNoActiveSubscription)
	}
	updated, err := s.repo.UpdateSubscriptionStatus(ctx, subscriptionID, models.SubscriptionCanceled)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !updated {
		return fmt.Errorf("%s: %w", op, ErrNoActiveSubscription)
	}
	s.log.Info("subscription canceled", slog.Int64("user_id", userID), slog.Int64("subscription_id", subscriptionID))
	return nil
}
