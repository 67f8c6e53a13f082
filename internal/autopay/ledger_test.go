package autopay

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paykit-wallet/paykitd/internal/models"
	"github.com/paykit-wallet/paykitd/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	alice = "alice"
	bob   = "bob"
)

func TestExceedsIsOverflowSafe(t *testing.T) {
	assert.False(t, exceeds(0, 10, 10))
	assert.True(t, exceeds(1, 10, 10))
	assert.True(t, exceeds(math.MaxUint64, 1, math.MaxUint64))
	assert.True(t, exceeds(1, math.MaxUint64, 100))
	assert.False(t, exceeds(0, math.MaxUint64, math.MaxUint64))
}

func TestResetSettingsIfElapsed(t *testing.T) {
	settings := &models.AutoPaySettings{CurrentDailySpent: 500, LastResetAt: t0}

	assert.False(t, ResetSettingsIfElapsed(settings, t0.Add(24*time.Hour)))
	assert.Equal(t, uint64(500), settings.CurrentDailySpent)

	later := t0.Add(24*time.Hour + time.Second)
	assert.True(t, ResetSettingsIfElapsed(settings, later))
	assert.Zero(t, settings.CurrentDailySpent)
	assert.Equal(t, later, settings.LastResetAt)

	// idempotent within the new window
	assert.False(t, ResetSettingsIfElapsed(settings, later.Add(time.Hour)))
}

func TestResetPeerIfElapsedAdvancesWholePeriods(t *testing.T) {
	limit := &models.PeerSpendingLimit{SpentSats: 90, Period: models.PeriodWeekly, ResetAt: t0}

	assert.False(t, ResetPeerIfElapsed(limit, t0.Add(-time.Second)))
	assert.Equal(t, uint64(90), limit.SpentSats)

	now := t0.Add(15 * 24 * time.Hour)
	assert.True(t, ResetPeerIfElapsed(limit, now))
	assert.Zero(t, limit.SpentSats)
	assert.Equal(t, t0.AddDate(0, 0, 21), limit.ResetAt)
	assert.False(t, ResetPeerIfElapsed(limit, now))
}

func TestResetPeerAtBoundary(t *testing.T) {
	limit := &models.PeerSpendingLimit{SpentSats: 10, Period: models.PeriodDaily, ResetAt: t0}
	assert.True(t, ResetPeerIfElapsed(limit, t0))
	assert.Equal(t, t0.AddDate(0, 0, 1), limit.ResetAt)
}

func TestCheckAndReserveGlobal(t *testing.T) {
	ctx := context.Background()
	db := repository.NewMemoryDB()
	require.NoError(t, db.SaveSettings(ctx, &models.AutoPaySettings{
		ID: models.SettingsID, Enabled: true, GlobalDailyLimit: 1000, LastResetAt: t0,
	}))
	ledger := NewLedger(db, 0)

	require.NoError(t, ledger.CheckAndReserve(ctx, GlobalScope(), 600, t0))
	err := ledger.CheckAndReserve(ctx, GlobalScope(), 500, t0)
	require.ErrorIs(t, err, models.ErrLimitExceeded)

	var limitErr *models.LimitExceededError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, uint64(600), limitErr.Spent)
	assert.Equal(t, "global", limitErr.Scope)

	require.NoError(t, ledger.CheckAndReserve(ctx, GlobalScope(), 400, t0))
	settings, err := db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), settings.CurrentDailySpent)
}

func TestCheckAndReserveResetsBeforeChecking(t *testing.T) {
	ctx := context.Background()
	db := repository.NewMemoryDB()
	require.NoError(t, db.SaveSettings(ctx, &models.AutoPaySettings{
		ID: models.SettingsID, Enabled: true, GlobalDailyLimit: 1000, CurrentDailySpent: 1000, LastResetAt: t0,
	}))
	ledger := NewLedger(db, 0)

	next := t0.Add(25 * time.Hour)
	require.NoError(t, ledger.CheckAndReserve(ctx, GlobalScope(), 700, next))

	settings, err := db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), settings.CurrentDailySpent)
	assert.Equal(t, next, settings.LastResetAt.UTC())
}

func TestCheckAndReservePeer(t *testing.T) {
	ctx := context.Background()
	db := repository.NewMemoryDB()
	ledger := NewLedger(db, 0)

	// no limit configured
	require.NoError(t, ledger.CheckAndReserve(ctx, PeerScope(alice), 1_000_000, t0))
	_, err := db.GetPeerLimit(ctx, alice)
	require.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, db.SavePeerLimit(ctx, &models.PeerSpendingLimit{
		PeerPubkey: bob, LimitSats: 100, Period: models.PeriodDaily, ResetAt: t0.Add(time.Hour),
	}))
	require.NoError(t, ledger.CheckAndReserve(ctx, PeerScope(bob), 100, t0))
	require.ErrorIs(t, ledger.CheckAndReserve(ctx, PeerScope(bob), 1, t0), models.ErrLimitExceeded)

	require.NoError(t, ledger.CheckAndReserve(ctx, PeerScope(bob), 1, t0.Add(time.Hour)))
	limit, err := db.GetPeerLimit(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), limit.SpentSats)
}

func TestReleaseSaturates(t *testing.T) {
	ctx := context.Background()
	db := repository.NewMemoryDB()
	require.NoError(t, db.SaveSettings(ctx, &models.AutoPaySettings{
		ID: models.SettingsID, GlobalDailyLimit: 1000, CurrentDailySpent: 50, LastResetAt: t0,
	}))
	ledger := NewLedger(db, 0)

	require.NoError(t, ledger.Release(ctx, GlobalScope(), 80))
	settings, err := db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Zero(t, settings.CurrentDailySpent)
}
