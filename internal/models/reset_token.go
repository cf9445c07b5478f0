package models

import "time"

// PasswordResetToken одноразовый токен сброса пароля.
type PasswordResetToken struct {
	ID        int64
	UserID    int64
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

// Redeemable сообщает, можно ли ещё использовать токен в момент now.
func (t *PasswordResetToken) Redeemable(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}
