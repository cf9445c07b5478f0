package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/datagate/internal/config"
)

const scanBatch = 500

// Redis кеш поверх go-redis. Значения хранятся в JSON под общим префиксом,
// истечение записей обеспечивает сам Redis.
type Redis[V any] struct {
	Db     *redis.Client
	ttl    time.Duration
	prefix string
}

// InitServer подключается к Redis и проверяет соединение.
func InitServer[V any](ctx context.Context, cfg config.RedisConnection, ttl time.Duration, prefix string) (*Redis[V], error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Redis[V]{Db: db, ttl: ttl, prefix: prefix}, nil
}

// Get читает значение и декодирует его. Числа декодируются как json.Number.
func (c *Redis[V]) Get(ctx context.Context, key string) (V, bool, error) {
	const op = "cache.Get"
	var result V
	val, err := c.Db.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return result, false, nil
	}
	if err != nil {
		return result, false, fmt.Errorf("%s: %w", op, err)
	}

	dec := json.NewDecoder(bytes.NewReader(val))
	dec.UseNumber()
	if err = dec.Decode(&result); err != nil {
		return result, false, fmt.Errorf("%s: %w", op, err)
	}
	return result, true, nil
}

// Set сохраняет значение с TTL кеша.
func (c *Redis[V]) Set(ctx context.Context, key string, value V) error {
	const op = "cache.Set"
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = c.Db.Set(ctx, c.prefix+key, jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Clear удаляет все ключи с префиксом кеша.
func (c *Redis[V]) Clear(ctx context.Context) error {
	const op = "cache.Clear"
	iter := c.Db.Scan(ctx, 0, c.prefix+"*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := c.Db.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(batch) > 0 {
		if err := c.Db.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// Close закрывает клиент Redis.
func (c *Redis[V]) Close() error {
	return c.Db.Close()
}
