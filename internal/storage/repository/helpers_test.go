package repository

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/magabrotheeeer/datagate/internal/cache"
	"github.com/magabrotheeeer/datagate/internal/config"
	"github.com/magabrotheeeer/datagate/internal/lib/password"
	"github.com/magabrotheeeer/datagate/internal/migrations"
	"github.com/magabrotheeeer/datagate/internal/storage"
	"github.com/magabrotheeeer/datagate/internal/storage/instrument"
)

// testClock ручные часы для проверки сроков жизни.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	repo    *Storage
	db      *storage.Storage
	clock   *testClock
	metrics *instrument.Metrics
}

// setupTestDatabase поднимает SQLite во временном каталоге со схемой из миграций.
func setupTestDatabase(t *testing.T, c cache.Cache[[]storage.Row]) *testEnv {
	t.Helper()
	ctx := context.Background()

	cfg := config.Storage{
		Driver:           config.DriverSQLite,
		ConnectionString: "file:" + filepath.Join(t.TempDir(), "repo.db"),
		PoolSize:         4,
	}
	require.NoError(t, migrations.Run(cfg.Driver, cfg.ConnectionString))

	sqlDB, dialect, err := storage.Open(ctx, cfg)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := instrument.NewMetrics(prometheus.NewRegistry())
	db, err := storage.New(ctx, sqlDB, dialect, cfg.PoolSize, storage.Deps{
		Log:      log,
		Cache:    c,
		Recorder: instrument.New(log, metrics, config.Instrumentation{SlowQueryThreshold: time.Second}),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := newTestClock()
	repo := New(db, password.NewBcrypt(bcrypt.MinCost), WithClock(clock.Now))
	return &testEnv{repo: repo, db: db, clock: clock, metrics: metrics}
}

func (e *testEnv) createUser(t *testing.T, email string) int64 {
	t.Helper()
	id, err := e.repo.CreateUser(context.Background(), email, "secret1", nil)
	require.NoError(t, err)
	require.Positive(t, id)
	return id
}
