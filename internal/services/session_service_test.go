package services

import (
	"context"
	"testing"

	"table_waiter/internal/models"
	"table_waiter/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateActiveSessionReusesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.sessions.GetOrCreateActiveSession(ctx, testRestaurant, "T1")
	require.NoError(t, err)
	again, err := env.sessions.GetOrCreateActiveSession(ctx, testRestaurant, "T1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := env.sessions.GetOrCreateActiveSession(ctx, testRestaurant, "T2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	_, err = env.sessions.GetOrCreateActiveSession(ctx, 0, "T1")
	assert.ErrorIs(t, err, ErrInvalidDetectionContext)
	_, err = env.sessions.GetOrCreateActiveSession(ctx, testRestaurant, "")
	assert.ErrorIs(t, err, ErrInvalidDetectionContext)
}

func TestRecomputeSessionStatsIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order := env.order(t, "T3", env.line(t, "Quinoa Power Bowl", 2))
	env.order(t, "T3", env.line(t, "Lemonade", 1))

	// drift the stored totals, recompute must repair them
	require.NoError(t, env.db.Model(&models.CustomerSession{}).Where("id = ?", order.SessionID).
		Updates(map[string]interface{}{"total_orders": 40, "total_spent": 1}).Error)

	for i := 0; i < 2; i++ {
		stats, err := env.sessions.RecomputeSessionStats(ctx, order.SessionID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.TotalOrders)
		assert.Equal(t, models.Cents(2*1450+400), stats.TotalSpent)
	}

	session, err := env.sessions.GetSession(ctx, order.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), session.TotalOrders)
	assert.Equal(t, models.Cents(3300), session.TotalSpent)
}

func TestIsLockedForModificationLooksAtRecentOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sessions := NewSessionService(repository.NewSessionRepository(env.db), env.orderRepo, 2, env.log)

	first := env.order(t, "T4", env.line(t, "Lemonade", 1))
	locked, err := sessions.IsLockedForModification(ctx, first.SessionID)
	require.NoError(t, err)
	assert.False(t, locked)

	env.setStatus(t, first.ID, models.OrderPreparing)
	locked, err = sessions.IsLockedForModification(ctx, first.SessionID)
	require.NoError(t, err)
	assert.True(t, locked)

	// the preparing order falls out of a window of two
	for i := 0; i < 2; i++ {
		o := env.order(t, "T4", env.line(t, "Tiramisu", 1))
		_, err := env.orders.SubmitOrder(ctx, o.ID)
		require.NoError(t, err)
	}
	locked, err = sessions.IsLockedForModification(ctx, first.SessionID)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestCancelledOrdersDoNotLockSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order := env.order(t, "T5", env.line(t, "Lemonade", 1))
	env.setStatus(t, order.ID, models.OrderPreparing)
	_, err := env.orders.CancelOrder(ctx, order.ID, "")
	require.NoError(t, err)

	locked, err := env.sessions.IsLockedForModification(ctx, order.SessionID)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestCloseSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order := env.order(t, "T6", env.line(t, "Margherita Pizza", 1))
	closed, err := env.sessions.CloseSession(ctx, order.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)
	assert.Equal(t, models.Cents(1500), closed.TotalSpent)

	_, err = env.sessions.CloseSession(ctx, order.SessionID)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = env.sessions.CloseSession(ctx, 9999)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	next, err := env.sessions.GetOrCreateActiveSession(ctx, testRestaurant, "T6")
	require.NoError(t, err)
	assert.NotEqual(t, order.SessionID, next.ID)
	assert.Equal(t, int64(0), next.TotalOrders)
}
