//go:build integration

package repository

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/magabrotheeeer/datagate/internal/cache"
	"github.com/magabrotheeeer/datagate/internal/config"
	"github.com/magabrotheeeer/datagate/internal/lib/password"
	"github.com/magabrotheeeer/datagate/internal/migrations"
	"github.com/magabrotheeeer/datagate/internal/models"
	"github.com/magabrotheeeer/datagate/internal/storage"
)

func setupPostgres(t *testing.T) *Storage {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := config.Storage{Driver: config.DriverPostgres, ConnectionString: dsn, PoolSize: 4}
	require.NoError(t, migrations.Run(cfg.Driver, cfg.ConnectionString))

	sqlDB, dialect, err := storage.Open(ctx, cfg)
	require.NoError(t, err)
	db, err := storage.New(ctx, sqlDB, dialect, cfg.PoolSize, storage.Deps{
		Log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Cache: cache.NewMemory[[]storage.Row](time.Minute),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return New(db, password.NewBcrypt(bcrypt.MinCost))
}

func TestPostgres_Scenarios(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	userID, err := repo.CreateUser(ctx, "a@example.com", "secret1", nil)
	require.NoError(t, err)
	require.Positive(t, userID)

	_, err = repo.CreateUser(ctx, "a@example.com", "secret1", nil)
	require.ErrorIs(t, err, storage.ErrConstraintViolation)

	u, err := repo.GetUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.NotEqual(t, "secret1", u.PasswordHash)

	session, err := repo.CreateSession(ctx, userID, 0)
	require.NoError(t, err)
	got, err := repo.GetSession(ctx, session.Token)
	require.NoError(t, err)
	assert.Nil(t, got)

	session, err = repo.CreateSession(ctx, userID, time.Hour)
	require.NoError(t, err)
	deleted, err := repo.DeleteSession(ctx, session.Token)
	require.NoError(t, err)
	assert.True(t, deleted)

	reset, err := repo.CreatePasswordResetToken(ctx, userID, time.Hour)
	require.NoError(t, err)
	ok, err := repo.MarkTokenUsed(ctx, reset.Token)
	require.NoError(t, err)
	assert.True(t, ok)
	gotReset, err := repo.GetPasswordResetToken(ctx, reset.Token)
	require.NoError(t, err)
	assert.Nil(t, gotReset)

	_, err = repo.CreateSubscription(ctx, userID, "pro", 30)
	require.NoError(t, err)
	sub, err := repo.GetUserSubscription(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), sub.EndDate, time.Minute)
}
