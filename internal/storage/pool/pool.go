// Package pool реализует ограниченный пул заранее открытых соединений.
//
// Пул создаёт ровно N соединений при старте и больше никогда не растёт.
// Acquire блокирует вызывающего, пока соединение не освободится, и служит
// единственной точкой конкуренции слоя доступа к данным.
package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed возвращается Acquire после CloseAll.
var ErrPoolClosed = errors.New("connection pool is closed")

// Dialer открывает новое соединение.
type Dialer[C io.Closer] func(ctx context.Context) (C, error)

// Stats снимок состояния пула.
type Stats struct {
	Size      int // ёмкость, заданная при создании
	Open      int // живые соединения: свободные и выданные
	Available int // свободные соединения
	InUse     int // выданные соединения
}

// Pool хранит фиксированный набор соединений C.
type Pool[C io.Closer] struct {
	idle chan C
	done chan struct{}
	size int
	open atomic.Int64

	// mu защищает closed от гонки между Release и CloseAll.
	mu     sync.RWMutex
	closed bool
}

// New создаёт пул и сразу открывает size соединений. Ошибка любого из них
// прерывает создание, уже открытые соединения закрываются.
func New[C io.Closer](ctx context.Context, size int, dial Dialer[C]) (*Pool[C], error) {
	const op = "storage.pool.New"
	if size <= 0 {
		return nil, fmt.Errorf("%s: size must be positive, got %d", op, size)
	}

	p := &Pool[C]{
		idle: make(chan C, size),
		done: make(chan struct{}),
		size: size,
	}
	for i := range size {
		conn, err := dial(ctx)
		if err != nil {
			closeErr := p.CloseAll()
			return nil, fmt.Errorf("%s: connection %d of %d: %w", op, i+1, size, errors.Join(err, closeErr))
		}
		p.open.Add(1)
		p.idle <- conn
	}
	return p, nil
}

// Acquire выдаёт свободное соединение, блокируясь до его появления.
// Ожидание прерывается только отменой ctx или закрытием пула.
func (p *Pool[C]) Acquire(ctx context.Context) (C, error) {
	const op = "storage.pool.Acquire"
	var zero C

	select {
	case <-p.done:
		return zero, fmt.Errorf("%s: %w", op, ErrPoolClosed)
	default:
	}

	select {
	case conn := <-p.idle:
		return conn, nil
	case <-p.done:
		return zero, fmt.Errorf("%s: %w", op, ErrPoolClosed)
	case <-ctx.Done():
		return zero, fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

// Release возвращает соединение в пул. Если пул закрыт или уже заполнен,
// соединение закрывается, пул при этом не растёт.
func (p *Pool[C]) Release(conn C) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.drop(conn)
		return
	}
	select {
	case p.idle <- conn:
	default:
		// все N соединений уже свободны, значит conn лишнее и в счётчике не учтено
		_ = conn.Close()
	}
}

// Discard закрывает сломанное соединение без замены: пул сжимается.
func (p *Pool[C]) Discard(conn C) {
	p.drop(conn)
}

func (p *Pool[C]) drop(conn C) {
	p.open.Add(-1)
	_ = conn.Close()
}

// With выдаёт соединение в fn и возвращает его на любом пути выхода,
// включая панику. При панике соединение возвращается в пул, и паника
// пробрасывается дальше. Если broken(err) истинно, соединение закрывается.
func (p *Pool[C]) With(ctx context.Context, fn func(C) error, broken func(error) bool) (err error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			p.Release(conn)
			panic(r)
		}
		if err != nil && broken != nil && broken(err) {
			p.Discard(conn)
			return
		}
		p.Release(conn)
	}()
	return fn(conn)
}

// CloseAll закрывает все свободные соединения. Выданные соединения
// закрываются при возврате через Release.
func (p *Pool[C]) CloseAll() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	var errs []error
	for {
		select {
		case conn := <-p.idle:
			p.open.Add(-1)
			if err := conn.Close(); err != nil {
				errs = append(errs, err)
			}
		default:
			return errors.Join(errs...)
		}
	}
}

// Stats возвращает текущее состояние пула.
func (p *Pool[C]) Stats() Stats {
	open := int(p.open.Load())
	available := len(p.idle)
	return Stats{
		Size:      p.size,
		Open:      open,
		Available: available,
		InUse:     open - available,
	}
}

// Size возвращает ёмкость пула.
func (p *Pool[C]) Size() int {
	return p.size
}
