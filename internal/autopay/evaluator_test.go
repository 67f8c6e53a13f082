package autopay

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paykit-wallet/paykitd/internal/metrics"
	"github.com/paykit-wallet/paykitd/internal/models"
	"github.com/paykit-wallet/paykitd/internal/repository"
	"github.com/paykit-wallet/paykitd/pkg/logger"
)

type fixture struct {
	db        *repository.MemoryDB
	evaluator *Evaluator
	recorder  *metrics.Recorder
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: repository.NewMemoryDB(), recorder: metrics.NewRecorder(), now: t0}
	f.evaluator = NewEvaluator(f.db, logger.NewNop(),
		WithClock(func() time.Time { return f.now }),
		WithMetrics(f.recorder),
		WithDefaultDailyLimit(5000),
	)
	return f
}

func (f *fixture) enable(t *testing.T, dailyLimit, spent uint64) {
	t.Helper()
	require.NoError(t, f.db.SaveSettings(context.Background(), &models.AutoPaySettings{
		ID:                models.SettingsID,
		Enabled:           true,
		DefaultMethodID:   models.MethodLightning,
		GlobalDailyLimit:  dailyLimit,
		CurrentDailySpent: spent,
		LastResetAt:       f.now,
	}))
}

func (f *fixture) addRule(t *testing.T, rule *models.AutoPayRule) *models.AutoPayRule {
	t.Helper()
	saved, err := f.evaluator.SaveRule(context.Background(), rule)
	require.NoError(t, err)
	return saved
}

func TestEvaluateWithoutSettingsIsDisabled(t *testing.T) {
	f := newFixture(t)

	res, err := f.evaluator.Evaluate(context.Background(), alice, 1, models.MethodLightning)
	require.NoError(t, err)
	assert.Equal(t, models.Denied(models.ReasonDisabled), res)

	settings, err := f.evaluator.Settings(context.Background())
	require.NoError(t, err)
	assert.False(t, settings.Enabled)
	assert.Equal(t, uint64(5000), settings.GlobalDailyLimit)
}

func TestEvaluateDisabledShortCircuits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.SaveSettings(ctx, &models.AutoPaySettings{
		ID: models.SettingsID, GlobalDailyLimit: 10, CurrentDailySpent: 10, LastResetAt: f.now.Add(-48 * time.Hour),
	}))
	f.addRule(t, &models.AutoPayRule{Name: "all", IsEnabled: true, MaxAmountSats: 1000})

	res, err := f.evaluator.Evaluate(ctx, alice, 1000, models.MethodLightning)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDenied, res.Outcome)
	assert.Equal(t, models.ReasonDisabled, res.Reason)

	settings, err := f.db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), settings.CurrentDailySpent, "disabled evaluation must not reset the window")
}

func TestEvaluateDailyLimitBeforePeerLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enable(t, 100, 90)
	_, err := f.evaluator.SetPeerLimit(ctx, alice, 5, models.PeriodDaily)
	require.NoError(t, err)

	res, err := f.evaluator.Evaluate(ctx, alice, 20, models.MethodLightning)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonDailyLimitExceeds, res.Reason)

	res, err = f.evaluator.Evaluate(ctx, alice, 10, models.MethodLightning)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonPeerLimitExceeds, res.Reason)
}

func TestEvaluateResetsGlobalWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enable(t, 100, 100)
	f.addRule(t, &models.AutoPayRule{Name: "all", IsEnabled: true, MaxAmountSats: 100})

	res, err := f.evaluator.Evaluate(ctx, alice, 50, models.MethodLightning)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonDailyLimitExceeds, res.Reason)

	f.now = f.now.Add(24 * time.Hour)
	res, err = f.evaluator.Evaluate(ctx, alice, 50, models.MethodLightning)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDenied, res.Outcome, "exactly 24h is still the same window")

	f.now = f.now.Add(time.Millisecond)
	res, err = f.evaluator.Evaluate(ctx, alice, 50, models.MethodLightning)
	require.NoError(t, err)
	assert.True(t, res.IsApproved())

	settings, err := f.db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Zero(t, settings.CurrentDailySpent)
	assert.True(t, settings.LastResetAt.Equal(f.now))
}

func TestEvaluatePersistsPeerResetOnDenial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enable(t, 1000, 0)
	require.NoError(t, f.db.SavePeerLimit(ctx, &models.PeerSpendingLimit{
		PeerPubkey: alice, LimitSats: 10, SpentSats: 10, Period: models.PeriodDaily, ResetAt: f.now,
	}))

	res, err := f.evaluator.Evaluate(ctx, alice, 50, models.MethodLightning)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonPeerLimitExceeds, res.Reason)

	limit, err := f.db.GetPeerLimit(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, limit.SpentSats)
	assert.True(t, limit.ResetAt.Equal(t0.AddDate(0, 0, 1)))
}

func TestEvaluateRuleSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enable(t, 10_000, 0)

	f.addRule(t, &models.AutoPayRule{Name: "bob only", PeerPubkey: bob, IsEnabled: true, MaxAmountSats: 1000})
	onchain := f.addRule(t, &models.AutoPayRule{
		Name: "onchain", IsEnabled: true, MaxAmountSats: 1000, Priority: 1,
		AllowedMethods: models.NewStringSet(models.MethodOnchain),
	})
	small := f.addRule(t, &models.AutoPayRule{Name: "small", IsEnabled: true, MaxAmountSats: 100, Priority: 2})

	res, err := f.evaluator.Evaluate(ctx, alice, 50, models.MethodLightning)
	require.NoError(t, err)
	assert.Equal(t, models.Approved(small.ID, "small"), res)

	res, err = f.evaluator.Evaluate(ctx, alice, 50, models.MethodOnchain)
	require.NoError(t, err)
	assert.Equal(t, onchain.ID, res.RuleID)

	res, err = f.evaluator.Evaluate(ctx, alice, 500, models.MethodLightning)
	require.NoError(t, err)
	assert.Equal(t, models.NeedsApproval(), res)

	// empty method uses the settings default
	res, err = f.evaluator.Evaluate(ctx, alice, 50, "")
	require.NoError(t, err)
	assert.Equal(t, small.ID, res.RuleID)
}

func TestEvaluateNeverReserves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enable(t, 100, 0)
	f.addRule(t, &models.AutoPayRule{Name: "all", IsEnabled: true, MaxAmountSats: 100})

	for i := 0; i < 3; i++ {
		res, err := f.evaluator.Evaluate(ctx, alice, 100, models.MethodLightning)
		require.NoError(t, err)
		assert.True(t, res.IsApproved())
	}
	settings, err := f.db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Zero(t, settings.CurrentDailySpent)

	count, err := testutil.GatherAndCount(f.recorder.Registry(), "paykit_autopay_evaluations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCommitReservesGlobalThenPeer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enable(t, 1000, 0)
	_, err := f.evaluator.SetPeerLimit(ctx, alice, 100, models.PeriodWeekly)
	require.NoError(t, err)

	require.NoError(t, f.evaluator.Commit(ctx, alice, 80))
	err = f.evaluator.Commit(ctx, alice, 30)
	require.ErrorIs(t, err, models.ErrLimitExceeded)

	settings, err := f.db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), settings.CurrentDailySpent, "global reservation is released when the peer refuses")

	limit, err := f.db.GetPeerLimit(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), limit.SpentSats)
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enabled := true
	limit := uint64(42)

	settings, err := f.evaluator.UpdateSettings(ctx, models.SettingsUpdate{Enabled: &enabled, GlobalDailyLimit: &limit})
	require.NoError(t, err)
	assert.True(t, settings.Enabled)
	assert.Equal(t, uint64(42), settings.GlobalDailyLimit)
	assert.Equal(t, models.MethodLightning, settings.DefaultMethodID)

	empty := " "
	_, err = f.evaluator.UpdateSettings(ctx, models.SettingsUpdate{DefaultMethodID: &empty})
	require.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestSetPeerLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.evaluator.SetPeerLimit(ctx, alice, 10, "hourly")
	require.ErrorIs(t, err, models.ErrInvalidArgument)

	limit, err := f.evaluator.SetPeerLimit(ctx, alice, 10, models.PeriodMonthly)
	require.NoError(t, err)
	assert.True(t, limit.ResetAt.Equal(t0.AddDate(0, 1, 0)))

	limit.SpentSats = 7
	require.NoError(t, f.db.SavePeerLimit(ctx, limit))

	limit, err = f.evaluator.SetPeerLimit(ctx, alice, 20, models.PeriodMonthly)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), limit.SpentSats)

	limit, err = f.evaluator.SetPeerLimit(ctx, alice, 20, models.PeriodYearly)
	require.NoError(t, err)
	assert.Zero(t, limit.SpentSats)

	limits, err := f.evaluator.ListPeerLimits(ctx)
	require.NoError(t, err)
	require.Len(t, limits, 1)

	require.NoError(t, f.evaluator.RemovePeerLimit(ctx, alice))
	limits, err = f.evaluator.ListPeerLimits(ctx)
	require.NoError(t, err)
	assert.Empty(t, limits)
}

func TestSaveRuleAssignsIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rule := f.addRule(t, &models.AutoPayRule{
		Name: "dup", IsEnabled: true, MaxAmountSats: 5,
		AllowedPeers: models.StringSet{alice, alice, ""},
	})
	assert.NotEmpty(t, rule.ID)
	assert.True(t, rule.CreatedAt.Equal(t0))
	assert.Equal(t, models.StringSet{alice}, rule.AllowedPeers)

	rules, err := f.evaluator.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	require.NoError(t, f.evaluator.DeleteRule(ctx, rule.ID))
	rules, err = f.evaluator.ListRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
}
