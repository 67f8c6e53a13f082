package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paykit-wallet/paykitd/internal/models"
	"github.com/paykit-wallet/paykitd/pkg/logger"
)

func testBackends(t *testing.T) map[string]models.Repository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallet.sqlite")
	sqliteDB, err := NewSQLiteDB(path, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sqliteDB.Close() })

	return map[string]models.Repository{
		"sqlite": sqliteDB,
		"memory": NewMemoryDB(),
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, repo models.Repository)) {
	for name, repo := range testBackends(t) {
		repo := repo
		t.Run(name, func(t *testing.T) { fn(t, repo) })
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo models.Repository) {
		ctx := context.Background()

		_, err := repo.GetSettings(ctx)
		require.ErrorIs(t, err, models.ErrNotFound)

		now := time.Now().UTC().Truncate(time.Second)
		settings := &models.AutoPaySettings{
			Enabled:           true,
			DefaultMethodID:   models.MethodLightning,
			GlobalDailyLimit:  100000,
			CurrentDailySpent: 2500,
			LastResetAt:       now,
		}
		require.NoError(t, repo.SaveSettings(ctx, settings))

		settings.CurrentDailySpent = 3000
		require.NoError(t, repo.SaveSettings(ctx, settings))

		got, err := repo.GetSettings(ctx)
		require.NoError(t, err)
		assert.True(t, got.Enabled)
		assert.Equal(t, uint64(100000), got.GlobalDailyLimit)
		assert.Equal(t, uint64(3000), got.CurrentDailySpent)
		assert.True(t, got.LastResetAt.Equal(now))
	})
}

func TestRulesOrderingAndMatchingFinder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo models.Repository) {
		ctx := context.Background()
		base := time.Now().UTC().Truncate(time.Second)

		rules := []*models.AutoPayRule{
			{ID: "late", Name: "late", MaxAmountSats: 1000, IsEnabled: true, Priority: 0, CreatedAt: base.Add(time.Minute)},
			{ID: "early", Name: "early", MaxAmountSats: 1000, IsEnabled: true, Priority: 0, CreatedAt: base},
			{ID: "first", Name: "first", MaxAmountSats: 1000, IsEnabled: true, Priority: -1, CreatedAt: base.Add(time.Hour)},
			{ID: "disabled", Name: "disabled", MaxAmountSats: 1000, IsEnabled: false, CreatedAt: base},
			{ID: "small", Name: "small", MaxAmountSats: 10, IsEnabled: true, CreatedAt: base},
			{ID: "other-peer", Name: "other", PeerPubkey: "peerB", MaxAmountSats: 1000, IsEnabled: true, CreatedAt: base},
			{
				ID:             "sets",
				Name:           "sets",
				AllowedMethods: models.NewStringSet(models.MethodLightning),
				AllowedPeers:   models.NewStringSet("peerA", "peerC"),
				MaxAmountSats:  1000,
				IsEnabled:      true,
				Priority:       5,
				CreatedAt:      base,
			},
		}
		for _, r := range rules {
			require.NoError(t, repo.SaveRule(ctx, r))
		}

		all, err := repo.ListRules(ctx)
		require.NoError(t, err)
		require.Len(t, all, len(rules))
		assert.Equal(t, "first", all[0].ID)

		matching, err := repo.GetMatchingRules(ctx, "peerA", models.MethodLightning, 500)
		require.NoError(t, err)
		ids := make([]string, 0, len(matching))
		for _, r := range matching {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, []string{"first", "early", "late", "sets"}, ids)

		sets, err := repo.GetRule(ctx, "sets")
		require.NoError(t, err)
		assert.Equal(t, models.StringSet{"lightning"}, sets.AllowedMethods)
		assert.Equal(t, models.StringSet{"peerA", "peerC"}, sets.AllowedPeers)

		require.NoError(t, repo.DeleteRule(ctx, "sets"))
		_, err = repo.GetRule(ctx, "sets")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestDeleteContactRemovesPeerLimit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo models.Repository) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		require.NoError(t, repo.SaveContact(ctx, &models.Contact{Pubkey: "peerA", Name: "Alice", CreatedAt: now}))
		require.NoError(t, repo.SaveContact(ctx, &models.Contact{Pubkey: "peerB", Name: "Bob", CreatedAt: now.Add(time.Second)}))
		require.NoError(t, repo.SavePeerLimit(ctx, &models.PeerSpendingLimit{
			PeerPubkey: "peerA",
			LimitSats:  5000,
			Period:     models.PeriodDaily,
			ResetAt:    now.Add(24 * time.Hour),
		}))

		require.NoError(t, repo.DeleteContact(ctx, "peerA"))

		_, err := repo.GetPeerLimit(ctx, "peerA")
		assert.ErrorIs(t, err, models.ErrNotFound)

		contacts, err := repo.ListContacts(ctx)
		require.NoError(t, err)
		require.Len(t, contacts, 1)
		assert.Equal(t, "peerB", contacts[0].Pubkey)
	})
}

func TestPaymentRequestsByDirection(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo models.Repository) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)
		expires := now.Add(-time.Hour)

		require.NoError(t, repo.SavePaymentRequest(ctx, &models.PaymentRequest{
			ID: "in-1", FromPubkey: "peerA", ToPubkey: "me", AmountSats: 100,
			CreatedAt: now, ExpiresAt: &expires,
			Status: models.RequestPending, Direction: models.DirectionIncoming,
		}))
		require.NoError(t, repo.SavePaymentRequest(ctx, &models.PaymentRequest{
			ID: "out-1", FromPubkey: "me", ToPubkey: "peerA", AmountSats: 200,
			CreatedAt: now, Status: models.RequestPending, Direction: models.DirectionOutgoing,
		}))

		incoming, err := repo.ListPaymentRequests(ctx, models.DirectionIncoming)
		require.NoError(t, err)
		require.Len(t, incoming, 1)
		assert.Equal(t, "in-1", incoming[0].ID)
		require.NotNil(t, incoming[0].ExpiresAt)
		assert.True(t, incoming[0].ExpiresAt.Equal(expires))
		assert.Equal(t, models.RequestPending, incoming[0].Status)

		all, err := repo.ListPaymentRequests(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)

		require.NoError(t, repo.DeletePaymentRequest(ctx, "in-1"))
		_, err = repo.GetPaymentRequest(ctx, "in-1")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestSentTrackingAndProposals(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo models.Repository) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		require.NoError(t, repo.SaveSentProposal(ctx, &models.SentProposal{ID: "sp-1", RecipientPubkey: "peerA", AmountSats: 1000, Frequency: models.FrequencyMonthly, CreatedAt: now}))
		require.NoError(t, repo.SaveSentPaymentRequest(ctx, &models.SentPaymentRequest{ID: "sr-1", RecipientPubkey: "peerA", AmountSats: 10, CreatedAt: now}))
		require.NoError(t, repo.SaveProposal(ctx, &models.SubscriptionProposal{ID: "p-1", ProviderPubkey: "peerB", Status: models.ProposalPending, CreatedAt: now}))
		require.NoError(t, repo.SaveProposal(ctx, &models.SubscriptionProposal{ID: "p-2", ProviderPubkey: "peerB", Status: models.ProposalDeclined, CreatedAt: now}))

		sentProposals, err := repo.ListSentProposals(ctx)
		require.NoError(t, err)
		require.Len(t, sentProposals, 1)

		sentRequests, err := repo.ListSentPaymentRequests(ctx)
		require.NoError(t, err)
		require.Len(t, sentRequests, 1)

		pending, err := repo.ListProposals(ctx, models.ProposalPending)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "p-1", pending[0].ID)

		require.NoError(t, repo.DeleteSentProposal(ctx, "sp-1"))
		_, err = repo.GetSentProposal(ctx, "sp-1")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestKeychain(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo models.Repository) {
		ctx := context.Background()

		_, err := repo.GetKey(ctx, models.KeyNoisePublicKey)
		require.ErrorIs(t, err, models.ErrNotFound)

		require.NoError(t, repo.SaveKey(ctx, models.KeyNoisePublicKey, "abc"))
		require.NoError(t, repo.SaveKey(ctx, models.KeyNoisePublicKey, "def"))

		got, err := repo.GetKey(ctx, models.KeyNoisePublicKey)
		require.NoError(t, err)
		assert.Equal(t, "def", got)
	})
}
