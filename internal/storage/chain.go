package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/datagate/internal/cache"
	"github.com/magabrotheeeer/datagate/internal/lib/sl"
	"github.com/magabrotheeeer/datagate/internal/storage/instrument"
)

type (
	selectHandler     func(ctx context.Context, query string, args []any) ([]Row, error)
	execHandler       func(ctx context.Context, query string, args []any) (ExecResult, error)
	selectInterceptor func(next selectHandler) selectHandler
	execInterceptor   func(next execHandler) execHandler
)

// chainSelect оборачивает h перехватчиками так, что первый в списке вызывается первым.
func chainSelect(h selectHandler, interceptors ...selectInterceptor) selectHandler {
	for i := len(interceptors) - 1; i >= 0; i-- {
		h = interceptors[i](h)
	}
	return h
}

func chainExec(h execHandler, interceptors ...execInterceptor) execHandler {
	for i := len(interceptors) - 1; i >= 0; i-- {
		h = interceptors[i](h)
	}
	return h
}

func (s *Storage) instrumentSelect(next selectHandler) selectHandler {
	return func(ctx context.Context, query string, args []any) ([]Row, error) {
		var rows []Row
		err := s.rec.Observe(ctx, instrument.KindSelect, query, func(ctx context.Context) error {
			var err error
			rows, err = next(ctx, query, args)
			return err
		})
		return rows, err
	}
}

func (s *Storage) instrumentExec(next execHandler) execHandler {
	return func(ctx context.Context, query string, args []any) (ExecResult, error) {
		var res ExecResult
		err := s.rec.Observe(ctx, instrument.KindExecute, query, func(ctx context.Context) error {
			var err error
			res, err = next(ctx, query, args)
			return err
		})
		return res, err
	}
}

func (s *Storage) guardSelect(next selectHandler) selectHandler {
	return func(ctx context.Context, query string, args []any) ([]Row, error) {
		if err := s.check(query); err != nil {
			return nil, err
		}
		return next(ctx, query, args)
	}
}

func (s *Storage) guardExec(next execHandler) execHandler {
	return func(ctx context.Context, query string, args []any) (ExecResult, error) {
		if err := s.check(query); err != nil {
			return ExecResult{}, err
		}
		return next(ctx, query, args)
	}
}

func (s *Storage) check(query string) error {
	if err := s.filter.Check(query); err != nil {
		s.metrics.Blocked()
		return err
	}
	return nil
}

// cacheSelect отдаёт результат из кеша или кладёт в кеш результат next.
// Ошибки кеша логируются и считаются промахом.
func (s *Storage) cacheSelect(next selectHandler) selectHandler {
	return func(ctx context.Context, query string, args []any) ([]Row, error) {
		if s.cache == nil || !cacheable(query) {
			return next(ctx, query, args)
		}

		key := cache.Key(query, args)
		cached, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.metrics.CacheResult(instrument.CacheError)
			s.log.WarnContext(ctx, "query cache get failed", sl.Op("storage.Select"), sl.Err(err), sl.Query(query))
		case ok:
			s.metrics.CacheResult(instrument.CacheHit)
			instrument.SetSource(ctx, instrument.SourceCache)
			return cloneRows(cached), nil
		default:
			s.metrics.CacheResult(instrument.CacheMiss)
		}

		snapshot := s.gen.snapshot()
		rows, err := next(ctx, query, args)
		if err != nil {
			return nil, err
		}
		if !s.gen.stable(snapshot) {
			return rows, nil
		}
		if err = s.cache.Set(ctx, key, cloneRows(rows)); err != nil {
			s.log.WarnContext(ctx, "query cache set failed", sl.Op("storage.Select"), sl.Err(err), sl.Query(query))
			return rows, nil
		}
		// Запись могла очистить кеш между проверкой и Set.
		if !s.gen.stable(snapshot) {
			s.clear(ctx)
		}
		return rows, nil
	}
}

// invalidateExec очищает весь кеш после каждого выполненного изменяющего запроса,
// в том числе завершившегося ошибкой.
func (s *Storage) invalidateExec(next execHandler) execHandler {
	return func(ctx context.Context, query string, args []any) (ExecResult, error) {
		s.gen.beginWrite()
		defer s.gen.endWrite()

		res, err := next(ctx, query, args)
		s.clear(ctx)
		return res, err
	}
}

func (s *Storage) clear(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Clear(ctx); err != nil {
		s.log.ErrorContext(ctx, "query cache clear failed", sl.Op("storage.Execute"), sl.Err(err))
		return
	}
	s.metrics.Invalidated()
}

func (s *Storage) runSelect(ctx context.Context, query string, args []any) ([]Row, error) {
	var result []Row
	err := s.pool.With(ctx, func(conn *sql.Conn) error {
		s.metrics.StoreCall(instrument.KindSelect)
		rows, err := conn.QueryContext(ctx, s.dialect.Rebind(query), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		result, err = scanRows(rows)
		return err
	}, isBroken)
	if err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

func (s *Storage) runExec(ctx context.Context, query string, args []any) (ExecResult, error) {
	var res ExecResult
	err := s.pool.With(ctx, func(conn *sql.Conn) error {
		s.metrics.StoreCall(instrument.KindExecute)
		if s.dialect.ReturningID && isInsert(query) {
			err := conn.QueryRowContext(ctx, s.dialect.Rebind(query)+" RETURNING id", args...).Scan(&res.LastInsertID)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				return nil
			case err != nil:
				return err
			}
			res.RowsAffected = 1
			return nil
		}

		r, err := conn.ExecContext(ctx, s.dialect.Rebind(query), args...)
		if err != nil {
			return err
		}
		// Не все драйверы поддерживают LastInsertId.
		if id, err := r.LastInsertId(); err == nil {
			res.LastInsertID = id
		}
		res.RowsAffected, err = r.RowsAffected()
		return err
	}, isBroken)
	if err != nil {
		return ExecResult{}, mapError(err)
	}
	return res, nil
}

func mapError(err error) error {
	if name, ok := constraint(err); ok {
		return &ConstraintError{Constraint: name, Err: err}
	}
	return err
}

// isBroken соединение после такой ошибки в пул не возвращается.
func isBroken(err error) bool {
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone)
}

func cacheable(query string) bool {
	return hasKeyword(query, "SELECT")
}

func isInsert(query string) bool {
	return hasKeyword(query, "INSERT") && !strings.Contains(strings.ToUpper(query), "RETURNING")
}

func hasKeyword(query, keyword string) bool {
	q := strings.TrimSpace(query)
	return len(q) >= len(keyword) && strings.EqualFold(q[:len(keyword)], keyword)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err = rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			// Буфер []byte принадлежит драйверу до следующего Next.
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return result, nil
}

func cloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		c := make(Row, len(r))
		for k, v := range r {
			c[k] = v
		}
		out[i] = c
	}
	return out
}
