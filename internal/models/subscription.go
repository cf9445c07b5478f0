package models

import "time"

// Статусы подписки. Переход active -> canceled необратим.
const (
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
)

// Subscription подписка пользователя на тарифный план.
type Subscription struct {
	ID        int64
	UserID    int64
	PlanType  string
	Status    string
	StartDate time.Time
	EndDate   time.Time
}

// ValidSubscriptionStatus проверяет, что status один из известных статусов.
func ValidSubscriptionStatus(status string) bool {
	return status == SubscriptionActive || status == SubscriptionCanceled
}
