package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/datagate/internal/config"
)

type ChannelMock struct{ mock.Mock }

func (m *ChannelMock) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(exchange, key, mandatory, immediate, msg).Error(0)
}

var cfg = config.Notifications{Exchange: "notifications", RoutingKey: "password_reset"}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAMQPNotifier_PasswordReset(t *testing.T) {
	expires := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("MSK", 3*3600))

	ch := &ChannelMock{}
	var published amqp.Publishing
	ch.On("Publish", "notifications", "password_reset", false, false, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(4).(amqp.Publishing) }).
		Return(nil)

	n := NewAMQPNotifier(ch, cfg, discard())
	require.NoError(t, n.PasswordReset(context.Background(), "alice@example.com", "tok", expires))
	ch.AssertExpectations(t)

	var msg PasswordResetMessage
	require.NoError(t, json.Unmarshal(published.Body, &msg))
	assert.Equal(t, "alice@example.com", msg.Email)
	assert.Equal(t, "tok", msg.Token)
	assert.True(t, expires.Equal(msg.ExpiresAt))
	assert.Equal(t, time.UTC, msg.ExpiresAt.Location())
}

func TestAMQPNotifier_Errors(t *testing.T) {
	t.Run("ошибка публикации", func(t *testing.T) {
		ch := &ChannelMock{}
		ch.On("Publish", mock.Anything, mock.Anything, false, false, mock.Anything).Return(amqp.ErrClosed)

		err := NewAMQPNotifier(ch, cfg, discard()).PasswordReset(context.Background(), "a@b.c", "tok", time.Now())
		assert.True(t, errors.Is(err, amqp.ErrClosed))
	})

	t.Run("отменённый контекст", func(t *testing.T) {
		ch := &ChannelMock{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := NewAMQPNotifier(ch, cfg, discard()).PasswordReset(ctx, "a@b.c", "tok", time.Now())
		assert.ErrorIs(t, err, context.Canceled)
		ch.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.PasswordReset(context.Background(), "alice@example.com", "tok", time.Now()))
	assert.Contains(t, buf.String(), `"email":"alice@example.com"`)
	assert.Contains(t, buf.String(), `"token":"tok"`)
}

func TestQueues(t *testing.T) {
	q := Queues(cfg)
	require.Len(t, q, 1)
	assert.Equal(t, "notification.password_reset", q[0].QueueName)
	assert.Equal(t, "password_reset", q[0].RoutingKey)
}
