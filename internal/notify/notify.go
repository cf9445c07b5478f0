// Package notify доставляет пользователям служебные уведомления.
//
// Письма отправляет отдельный сервис: здесь сообщения только публикуются
// в RabbitMQ. Без брокера используется LogNotifier.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/datagate/internal/config"
	"github.com/magabrotheeeer/datagate/internal/lib/rabbitmq"
)

// PasswordResetMessage тело сообщения о сбросе пароля.
type PasswordResetMessage struct {
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Queues очереди, которые нужно объявить для уведомлений.
func Queues(cfg config.Notifications) []rabbitmq.QueueConfig {
	return []rabbitmq.QueueConfig{
		{QueueName: "notification." + cfg.RoutingKey, RoutingKey: cfg.RoutingKey},
	}
}

// AMQPNotifier публикует уведомления в обменник RabbitMQ.
type AMQPNotifier struct {
	ch         rabbitmq.Channel
	exchange   string
	routingKey string
	log        *slog.Logger
}

// NewAMQPNotifier создает новый экземпляр AMQPNotifier.
func NewAMQPNotifier(ch rabbitmq.Channel, cfg config.Notifications, log *slog.Logger) *AMQPNotifier {
	return &AMQPNotifier{
		ch:         ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		log:        log,
	}
}

// PasswordReset публикует ссылку на сброс пароля.
func (n *AMQPNotifier) PasswordReset(ctx context.Context, email, resetToken string, expiresAt time.Time) error {
	const op = "notify.PasswordReset"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	msg := PasswordResetMessage{Email: email, Token: resetToken, ExpiresAt: expiresAt.UTC()}
	if err := rabbitmq.PublishMessage(n.ch, n.exchange, n.routingKey, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n.log.Debug("password reset notification published", slog.String("email", email))
	return nil
}

// LogNotifier пишет уведомления в лог вместо отправки.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier создает новый экземпляр LogNotifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// PasswordReset выводит токен сброса в лог.
func (n *LogNotifier) PasswordReset(_ context.Context, email, resetToken string, expiresAt time.Time) error {
	n.log.Info("password reset requested, notifications are not configured",
		slog.String("email", email),
		slog.String("token", resetToken),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}
