package autopay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paykit-wallet/paykitd/internal/models"
	"github.com/paykit-wallet/paykitd/pkg/logger"
)

type fakeExecutor struct {
	mu        sync.Mutex
	lightning int
	onchain   int
	err       error
}

func (e *fakeExecutor) PayLightning(ctx context.Context, invoice string, amountSats *uint64) (*models.PaymentResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.lightning++
	return &models.PaymentResult{PaymentHash: "hash-" + invoice, AmountSats: *amountSats}, nil
}

func (e *fakeExecutor) PayOnchain(ctx context.Context, address string, amountSats uint64, feeRate *float64) (*models.TxResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.onchain++
	return &models.TxResult{TxID: "tx-" + address, AmountSats: amountSats}, nil
}

func (e *fakeExecutor) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lightning + e.onchain
}

func newPayer(t *testing.T, f *fixture, exec *fakeExecutor) *Payer {
	t.Helper()
	return NewPayer(f.evaluator, exec, f.recorder, logger.NewNop())
}

func TestPayExecutesAndCommits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enable(t, 1000, 0)
	f.addRule(t, &models.AutoPayRule{Name: "all", IsEnabled: true, MaxAmountSats: 500})
	exec := &fakeExecutor{}
	payer := newPayer(t, f, exec)

	out, err := payer.Pay(ctx, models.PaymentIntent{PeerPubkey: alice, AmountSats: 300, Invoice: "lnbc1"})
	require.NoError(t, err)
	assert.True(t, out.Executed)
	require.NotNil(t, out.Lightning)
	assert.Equal(t, "hash-lnbc1", out.Lightning.PaymentHash)

	out, err = payer.Pay(ctx, models.PaymentIntent{PeerPubkey: alice, AmountSats: 300, MethodID: models.MethodOnchain, Address: "bc1q"})
	require.NoError(t, err)
	require.NotNil(t, out.Onchain)

	settings, err := f.db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), settings.CurrentDailySpent)

	// budget now exhausted
	out, err = payer.Pay(ctx, models.PaymentIntent{PeerPubkey: alice, AmountSats: 500, Invoice: "lnbc2"})
	require.NoError(t, err)
	assert.False(t, out.Executed)
	assert.Equal(t, models.ReasonDailyLimitExceeds, out.Decision.Reason)
	assert.Equal(t, 2, exec.calls())
}

func TestPayDoesNotExecuteWithoutApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enable(t, 1000, 0)
	exec := &fakeExecutor{}
	payer := newPayer(t, f, exec)

	out, err := payer.Pay(ctx, models.PaymentIntent{PeerPubkey: alice, AmountSats: 10, Invoice: "lnbc"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNeedsApproval, out.Decision.Outcome)
	assert.Zero(t, exec.calls())
}

func TestPayRejectsBadIntents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enable(t, 1000, 0)
	f.addRule(t, &models.AutoPayRule{Name: "all", IsEnabled: true, MaxAmountSats: 500})
	payer := newPayer(t, f, &fakeExecutor{})

	_, err := payer.Pay(ctx, models.PaymentIntent{PeerPubkey: alice})
	require.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = payer.Pay(ctx, models.PaymentIntent{AmountSats: 1})
	require.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = payer.Pay(ctx, models.PaymentIntent{PeerPubkey: alice, AmountSats: 1, MethodID: "bolt12"})
	var perr *models.PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.PaymentErrUnsupportedMethod, perr.Kind)

	_, err = payer.Pay(ctx, models.PaymentIntent{PeerPubkey: alice, AmountSats: 1})
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.PaymentErrInvalidRecipient, perr.Kind)
}

func TestPayExecutorFailureDoesNotCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enable(t, 1000, 0)
	f.addRule(t, &models.AutoPayRule{Name: "all", IsEnabled: true, MaxAmountSats: 500})
	payer := newPayer(t, f, &fakeExecutor{err: errors.New("no route")})

	out, err := payer.Pay(ctx, models.PaymentIntent{PeerPubkey: alice, AmountSats: 100, Invoice: "lnbc"})
	var perr *models.PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.PaymentErrUnknown, perr.Kind)
	assert.False(t, out.Executed)

	settings, err := f.db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Zero(t, settings.CurrentDailySpent)
}

func TestPayRespectsPeerLimitUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enable(t, 10_000, 0)
	_, err := f.evaluator.SetPeerLimit(ctx, alice, 500, models.PeriodDaily)
	require.NoError(t, err)
	f.addRule(t, &models.AutoPayRule{Name: "all", IsEnabled: true, MaxAmountSats: 500})
	exec := &fakeExecutor{}
	payer := newPayer(t, f, exec)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := payer.Pay(ctx, models.PaymentIntent{PeerPubkey: alice, AmountSats: 100, Invoice: "lnbc"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, exec.calls())
	limit, err := f.db.GetPeerLimit(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), limit.SpentSats)
}

// gatedExecutor blocks every payment until release is closed.
type gatedExecutor struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (e *gatedExecutor) PayLightning(ctx context.Context, invoice string, amountSats *uint64) (*models.PaymentResult, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	e.started <- struct{}{}
	<-e.release
	return &models.PaymentResult{PaymentHash: "hash-" + invoice, AmountSats: *amountSats}, nil
}

func (e *gatedExecutor) PayOnchain(ctx context.Context, address string, amountSats uint64, feeRate *float64) (*models.TxResult, error) {
	return nil, errors.New("not used")
}

func TestPaySharesGlobalBudgetAcrossPeers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enable(t, 1000, 0)
	f.addRule(t, &models.AutoPayRule{Name: "all", IsEnabled: true, MaxAmountSats: 1000})
	exec := &gatedExecutor{started: make(chan struct{}, 2), release: make(chan struct{})}
	payer := NewPayer(f.evaluator, exec, f.recorder, logger.NewNop())

	type result struct {
		out *models.PaymentOutcome
		err error
	}
	results := make(chan result, 2)
	for _, peer := range []string{alice, bob} {
		go func(peer string) {
			out, err := payer.Pay(ctx, models.PaymentIntent{PeerPubkey: peer, AmountSats: 600, Invoice: "lnbc-" + peer})
			results <- result{out, err}
		}(peer)
	}

	<-exec.started
	select {
	case <-exec.started:
		t.Fatal("second payment executed while the first was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(exec.release)

	executed := 0
	for i := 0; i < 2; i++ {
		r := <-results
		require.NoError(t, r.err)
		if r.out.Executed {
			executed++
		} else {
			assert.Equal(t, models.ReasonDailyLimitExceeds, r.out.Decision.Reason)
		}
	}
	assert.Equal(t, 1, executed)
	assert.Equal(t, 1, exec.calls)

	settings, err := f.db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), settings.CurrentDailySpent)
}
