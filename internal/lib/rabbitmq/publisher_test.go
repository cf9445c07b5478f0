package rabbitmq

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	exchange, key string
	msg           amqp.Publishing
	err           error
}

func (c *recordingChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return c.err
}

func TestPublishMessage(t *testing.T) {
	type TestMsg struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	t.Run("success publish", func(t *testing.T) {
		ch := &recordingChannel{}
		msg := TestMsg{ID: 1, Name: "Hello"}

		require.NoError(t, PublishMessage(ch, "ex", "rk", msg))

		assert.Equal(t, "ex", ch.exchange)
		assert.Equal(t, "rk", ch.key)
		assert.Equal(t, "application/json", ch.msg.ContentType)
		assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)

		var got TestMsg
		require.NoError(t, json.Unmarshal(ch.msg.Body, &got))
		assert.Equal(t, msg, got)
	})

	t.Run("marshal error", func(t *testing.T) {
		badMsg := struct {
			Ch chan int `json:"ch"`
		}{
			Ch: make(chan int),
		}

		err := PublishMessage(&recordingChannel{}, "", "q", badMsg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rabbitmq.PublishMessage")
	})

	t.Run("publish error", func(t *testing.T) {
		ch := &recordingChannel{err: amqp.ErrClosed}
		err := PublishMessage(ch, "", "q", map[string]any{"ok": true})
		assert.True(t, errors.Is(err, amqp.ErrClosed))
	})
}
