package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/datagate/internal/models"
)

// CreateSubscription оформляет активную подписку на days дней начиная с текущего момента.
func (s *Storage) CreateSubscription(ctx context.Context, userID int64, planType string, days int) (*models.Subscription, error) {
	const op = "storage.CreateSubscription"

	if days <= 0 {
		return nil, fmt.Errorf("%s: duration must be positive, got %d days", op, days)
	}
	start := s.clock()
	sub := &models.Subscription{
		UserID:    userID,
		PlanType:  planType,
		Status:    models.SubscriptionActive,
		StartDate: start,
		EndDate:   start.AddDate(0, 0, days),
	}
	res, err := s.db.Execute(ctx, queryInsertSubscription, sub.UserID, sub.PlanType, sub.Status, sub.StartDate, sub.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub.ID = res.LastInsertID
	return sub, nil
}

// GetUserSubscription возвращает активную подписку пользователя с самой поздней
// датой окончания или nil, если активных подписок нет.
func (s *Storage) GetUserSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "storage.GetUserSubscription"

	row, err := s.selectOne(ctx, queryActiveSubscription, userID, models.SubscriptionActive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if row == nil {
		return nil, nil
	}
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// UpdateSubscriptionStatus переводит подписку в status. Поддерживается только
// active -> canceled; возврат в active даёт ErrInvalidTransition.
// false, если подписки нет или она уже отменена.
func (s *Storage) UpdateSubscriptionStatus(ctx context.Context, subscriptionID int64, status string) (bool, error) {
	const op = "storage.UpdateSubscriptionStatus"

	if !models.ValidSubscriptionStatus(status) {
		return false, fmt.Errorf("%s: %w: %q", op, ErrInvalidStatus, status)
	}
	if status == models.SubscriptionActive {
		return false, fmt.Errorf("%s: %w: reactivation is not supported", op, ErrInvalidTransition)
	}
	return s.executeAffected(ctx, op, queryCancelSubscription, status, subscriptionID, models.SubscriptionActive)
}
