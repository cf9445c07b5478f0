package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/datagate/internal/cache"
	"github.com/magabrotheeeer/datagate/internal/models"
	"github.com/magabrotheeeer/datagate/internal/storage"
)

func TestStorage_CreateSubscription(t *testing.T) {
	env := setupTestDatabase(t, cache.NewMemory[[]storage.Row](time.Minute))
	ctx := context.Background()
	userID := env.createUser(t, "a@example.com")

	created, err := env.repo.CreateSubscription(ctx, userID, "pro", 30)
	require.NoError(t, err)

	got, err := env.repo.GetUserSubscription(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "pro", got.PlanType)
	assert.Equal(t, models.SubscriptionActive, got.Status)
	assert.WithinDuration(t, env.clock.Now().Add(30*24*time.Hour), got.EndDate, time.Second)
}

func TestStorage_GetUserSubscriptionPicksLatestEnd(t *testing.T) {
	env := setupTestDatabase(t, nil)
	ctx := context.Background()
	userID := env.createUser(t, "a@example.com")

	_, err := env.repo.CreateSubscription(ctx, userID, "basic", 10)
	require.NoError(t, err)
	longest, err := env.repo.CreateSubscription(ctx, userID, "pro", 90)
	require.NoError(t, err)
	_, err = env.repo.CreateSubscription(ctx, userID, "team", 30)
	require.NoError(t, err)

	got, err := env.repo.GetUserSubscription(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, longest.ID, got.ID)
}

func TestStorage_GetUserSubscriptionTieBreaksOnID(t *testing.T) {
	env := setupTestDatabase(t, nil)
	ctx := context.Background()
	userID := env.createUser(t, "a@example.com")

	_, err := env.repo.CreateSubscription(ctx, userID, "basic", 30)
	require.NoError(t, err)
	second, err := env.repo.CreateSubscription(ctx, userID, "pro", 30)
	require.NoError(t, err)

	got, err := env.repo.GetUserSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestStorage_CancelSubscription(t *testing.T) {
	env := setupTestDatabase(t, cache.NewMemory[[]storage.Row](time.Minute))
	ctx := context.Background()
	userID := env.createUser(t, "a@example.com")

	sub, err := env.repo.CreateSubscription(ctx, userID, "pro", 30)
	require.NoError(t, err)
	_, err = env.repo.GetUserSubscription(ctx, userID)
	require.NoError(t, err)

	ok, err := env.repo.UpdateSubscriptionStatus(ctx, sub.ID, models.SubscriptionCanceled)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := env.repo.GetUserSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err = env.repo.UpdateSubscriptionStatus(ctx, sub.ID, models.SubscriptionCanceled)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorage_UpdateSubscriptionStatusRejected(t *testing.T) {
	env := setupTestDatabase(t, nil)
	ctx := context.Background()

	_, err := env.repo.UpdateSubscriptionStatus(ctx, 1, models.SubscriptionActive)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = env.repo.UpdateSubscriptionStatus(ctx, 1, "paused")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestStorage_CreateSubscriptionInvalidDuration(t *testing.T) {
	env := setupTestDatabase(t, nil)

	_, err := env.repo.CreateSubscription(context.Background(), 1, "pro", 0)
	assert.Error(t, err)
}

func TestStorage_NoSubscription(t *testing.T) {
	env := setupTestDatabase(t, nil)

	got, err := env.repo.GetUserSubscription(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}
