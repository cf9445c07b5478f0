package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	defaultShards = 16
	// purgeThreshold размер шарда, после которого Set вычищает просроченные записи.
	purgeThreshold = 1024
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type shard[V any] struct {
	mu    sync.Mutex
	items map[string]entry[V]
}

// Memory кеш в памяти процесса. Ключ распределяется по шардам хешем xxhash,
// каждый шард защищён своим мьютексом.
type Memory[V any] struct {
	ttl    time.Duration
	now    Clock
	shards []*shard[V]
}

// MemoryOption настраивает Memory.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	now    Clock
	shards int
}

// WithClock подменяет источник времени.
func WithClock(now Clock) MemoryOption {
	return func(o *memoryOptions) { o.now = now }
}

// WithShards задаёт количество шардов.
func WithShards(n int) MemoryOption {
	return func(o *memoryOptions) {
		if n > 0 {
			o.shards = n
		}
	}
}

// NewMemory создаёт кеш с фиксированным ttl для всех записей.
func NewMemory[V any](ttl time.Duration, opts ...MemoryOption) *Memory[V] {
	o := memoryOptions{now: time.Now, shards: defaultShards}
	for _, opt := range opts {
		opt(&o)
	}
	m := &Memory[V]{
		ttl:    ttl,
		now:    o.now,
		shards: make([]*shard[V], o.shards),
	}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]entry[V])}
	}
	return m
}

func (m *Memory[V]) shardFor(key string) *shard[V] {
	return m.shards[xxhash.Sum64String(key)%uint64(len(m.shards))]
}

// Get возвращает значение, если запись ещё жива. Просроченная запись удаляется.
func (m *Memory[V]) Get(_ context.Context, key string) (V, bool, error) {
	var zero V
	s := m.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		return zero, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(s.items, key)
		return zero, false, nil
	}
	return e.value, true, nil
}

// Set сохраняет значение до now+ttl.
func (m *Memory[V]) Set(_ context.Context, key string, value V) error {
	s := m.shardFor(key)
	now := m.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) >= purgeThreshold {
		for k, e := range s.items {
			if !now.Before(e.expiresAt) {
				delete(s.items, k)
			}
		}
	}
	s.items[key] = entry[V]{value: value, expiresAt: now.Add(m.ttl)}
	return nil
}

// Clear удаляет все записи во всех шардах.
func (m *Memory[V]) Clear(_ context.Context) error {
	for _, s := range m.shards {
		s.mu.Lock()
		clear(s.items)
		s.mu.Unlock()
	}
	return nil
}

// Len возвращает количество хранимых записей, включая ещё не вычищенные просроченные.
func (m *Memory[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}
