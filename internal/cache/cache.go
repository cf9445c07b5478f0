// Package cache содержит TTL-кеш результатов чтения с инвалидацией всего кеша.
//
// Доступны два бэкенда: Memory (шардированная map в памяти процесса) и
// Redis. Оба реализуют Cache и применяют одинаковый TTL ко всем записям.
package cache

import (
	"context"
	"time"
)

// Cache описывает методы кеша запросов.
type Cache[V any] interface {
	// Get возвращает значение по ключу. Просроченная запись ведёт себя как промах.
	Get(ctx context.Context, key string) (V, bool, error)
	// Set сохраняет значение с TTL, заданным при создании кеша.
	Set(ctx context.Context, key string, value V) error
	// Clear удаляет все записи.
	Clear(ctx context.Context) error
}

// Clock источник текущего времени, подменяется в тестах.
type Clock func() time.Time
