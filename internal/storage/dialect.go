package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/magabrotheeeer/datagate/internal/config"
)

// Dialect различия драйверов, которые нужно учитывать при выполнении запросов.
// Запросы слоя доступа к данным пишутся с плейсхолдерами "?".
type Dialect struct {
	Driver string
	// Numbered плейсхолдеры вида $1, $2.
	Numbered bool
	// ReturningID драйвер не поддерживает LastInsertId, id берётся через RETURNING.
	ReturningID bool
}

// DialectFor возвращает диалект для имени драйвера database/sql.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case config.DriverPostgres:
		return Dialect{Driver: driver, Numbered: true, ReturningID: true}, nil
	case config.DriverSQLite:
		return Dialect{Driver: driver}, nil
	default:
		return Dialect{}, fmt.Errorf("storage.DialectFor: unsupported driver %q", driver)
	}
}

// Rebind переписывает "?" в нумерованные плейсхолдеры. Текст в одинарных
// кавычках не затрагивается.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			quoted = !quoted
			b.WriteByte(ch)
		case ch == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// DSN дополняет строку подключения параметрами, без которых драйвер
// ведёт себя не так, как ожидает слой доступа к данным.
func (d Dialect) DSN(dsn string) string {
	if d.Driver != config.DriverSQLite {
		return dsn
	}
	params := []struct{ name, value string }{
		{"_time_format", "_time_format=sqlite"},
		{"busy_timeout", "_pragma=busy_timeout(5000)"},
		{"journal_mode", "_pragma=journal_mode(WAL)"},
		{"foreign_keys", "_pragma=foreign_keys(1)"},
	}
	for _, p := range params {
		if strings.Contains(dsn, p.name) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + p.value
		} else {
			dsn += "?" + p.value
		}
	}
	return dsn
}

// constraint распознаёт нарушение ограничения целостности и возвращает имя ограничения,
// если драйвер его сообщает.
func constraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
			return pgErr.ConstraintName, true
		}
		return "", false
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return "", liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return "", false
}
