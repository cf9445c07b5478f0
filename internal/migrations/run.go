// Package migrations применяет встроенную схему хранилища через golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	// Драйверы database/sql, которыми открывается отдельное подключение для миграций.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/magabrotheeeer/datagate/internal/config"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Run открывает отдельное подключение по dsn, применяет все миграции
// и закрывает его. ErrNoChange ошибкой не считается.
func Run(driverName, dsn string) error {
	const op = "migrations.Run"

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	m, err := newMigrate(db, driverName)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("%s: %w", op, err)
	}
	// Close закрывает и db.
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Version возвращает текущую версию схемы и признак незавершённой миграции.
func Version(driverName, dsn string) (uint, bool, error) {
	const op = "migrations.Version"

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	m, err := newMigrate(db, driverName)
	if err != nil {
		_ = db.Close()
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	defer m.Close()

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	return v, dirty, nil
}

func newMigrate(db *sql.DB, driverName string) (*migrate.Migrate, error) {
	var (
		dir    string
		name   string
		driver database.Driver
		err    error
	)
	switch driverName {
	case config.DriverPostgres:
		dir, name = "postgres", "pgx_v5"
		driver, err = pgxv5.WithInstance(db, &pgxv5.Config{})
	case config.DriverSQLite:
		dir, name = "sqlite", "sqlite"
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported driver %q", driverName)
	}
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(files, dir)
	if err != nil {
		return nil, err
	}
	return migrate.NewWithInstance("iofs", src, name, driver)
}
