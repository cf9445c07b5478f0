// Package storage реализует защищённый слой доступа к реляционному хранилищу.
//
// Все запросы проходят через две операции, Select и Execute. Каждая из них
// собрана один раз в New как упорядоченная цепочка перехватчиков:
// инструментирование, проверка текста запроса, кеш (для Select) или
// инвалидация кеша (для Execute) и, наконец, выполнение на соединении из пула.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	// Регистрация драйверов pgx и sqlite для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/magabrotheeeer/datagate/internal/cache"
	"github.com/magabrotheeeer/datagate/internal/config"
	"github.com/magabrotheeeer/datagate/internal/storage/guard"
	"github.com/magabrotheeeer/datagate/internal/storage/instrument"
	"github.com/magabrotheeeer/datagate/internal/storage/pool"
)

// Row строка результата: имя колонки -> значение.
type Row map[string]any

// ExecResult результат Execute.
type ExecResult struct {
	LastInsertID int64
	RowsAffected int64
}

var (
	// ErrSecurityViolation запрос отклонён фильтром до выполнения.
	ErrSecurityViolation = guard.ErrSecurityViolation
	// ErrConstraintViolation нарушено ограничение целостности (уникальность, внешний ключ, NOT NULL).
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrClosed хранилище закрыто.
	ErrClosed = pool.ErrPoolClosed
)

// ConstraintError нарушение ограничения целостности с исходной ошибкой драйвера.
type ConstraintError struct {
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s %q: %v", ErrConstraintViolation, e.Constraint, e.Err)
	}
	return fmt.Sprintf("%s: %v", ErrConstraintViolation, e.Err)
}

func (e *ConstraintError) Unwrap() []error {
	return []error{ErrConstraintViolation, e.Err}
}

// Deps зависимости Storage. Нулевые поля заменяются значениями по умолчанию:
// без Cache запросы не кешируются, без Filter используется guard.New.
type Deps struct {
	Log      *slog.Logger
	Cache    cache.Cache[[]Row]
	Filter   *guard.Filter
	Recorder *instrument.Recorder
}

// Storage пул соединений и цепочки перехватчиков для Select и Execute.
// Безопасен для конкурентного использования.
type Storage struct {
	db      *sql.DB
	dialect Dialect
	pool    *pool.Pool[*sql.Conn]
	filter  *guard.Filter
	cache   cache.Cache[[]Row]
	rec     *instrument.Recorder
	metrics *instrument.Metrics
	log     *slog.Logger
	gen     generation

	selectChain selectHandler
	execChain   execHandler
}

// Open открывает базу по настройкам cfg и проверяет подключение.
// Размер пула database/sql ограничивается cfg.PoolSize.
func Open(ctx context.Context, cfg config.Storage) (*sql.DB, Dialect, error) {
	const op = "storage.Open"

	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("%s: %w", op, err)
	}
	db, err := sql.Open(cfg.Driver, dialect.DSN(cfg.ConnectionString))
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, Dialect{}, fmt.Errorf("%s: %w", op, err)
	}
	db.SetMaxOpenConns(cfg.PoolSize)
	db.SetMaxIdleConns(cfg.PoolSize)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	return db, dialect, nil
}

// New закрепляет size соединений db в пуле и собирает цепочки перехватчиков.
func New(ctx context.Context, db *sql.DB, dialect Dialect, size int, deps Deps) (*Storage, error) {
	const op = "storage.New"

	if deps.Log == nil {
		deps.Log = slog.New(slog.DiscardHandler)
	}
	if deps.Filter == nil {
		deps.Filter = guard.New()
	}
	if deps.Recorder == nil {
		deps.Recorder = instrument.New(deps.Log, nil, config.Instrumentation{})
	}

	p, err := pool.New(ctx, size, func(ctx context.Context) (*sql.Conn, error) {
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		if err = conn.PingContext(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s := &Storage{
		db:      db,
		dialect: dialect,
		pool:    p,
		filter:  deps.Filter,
		cache:   deps.Cache,
		rec:     deps.Recorder,
		metrics: deps.Recorder.Metrics(),
		log:     deps.Log.With(slog.String("component", "storage")),
	}
	s.selectChain = chainSelect(s.runSelect,
		s.instrumentSelect,
		s.guardSelect,
		s.cacheSelect,
	)
	s.execChain = chainExec(s.runExec,
		s.instrumentExec,
		s.guardExec,
		s.invalidateExec,
	)
	return s, nil
}

// Select выполняет читающий запрос. Результаты запросов, начинающихся с SELECT,
// кешируются на время TTL кеша.
func (s *Storage) Select(ctx context.Context, query string, args ...any) ([]Row, error) {
	const op = "storage.Select"
	rows, err := s.selectChain(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rows, nil
}

// Execute выполняет изменяющий запрос и после него полностью очищает кеш.
func (s *Storage) Execute(ctx context.Context, query string, args ...any) (ExecResult, error) {
	const op = "storage.Execute"
	res, err := s.execChain(ctx, query, args)
	if err != nil {
		return ExecResult{}, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// Allow регистрирует константные запросы слоя доступа к данным,
// которые фильтр пропускает без проверки.
func (s *Storage) Allow(queries ...string) {
	s.filter.Allow(queries...)
}

// Stats состояние пула соединений.
func (s *Storage) Stats() pool.Stats {
	return s.pool.Stats()
}

// Dialect диалект, с которым открыта база.
func (s *Storage) Dialect() Dialect {
	return s.dialect
}

// Ping проверяет доступность базы через соединение из пула.
func (s *Storage) Ping(ctx context.Context) error {
	const op = "storage.Ping"
	err := s.pool.With(ctx, func(conn *sql.Conn) error {
		return conn.PingContext(ctx)
	}, isBroken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close закрывает пул и базу. Выданные соединения закрываются при возврате.
func (s *Storage) Close() error {
	const op = "storage.Close"
	if err := errors.Join(s.pool.CloseAll(), s.db.Close()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
