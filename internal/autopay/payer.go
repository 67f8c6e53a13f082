package autopay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/paykit-wallet/paykitd/internal/metrics"
	"github.com/paykit-wallet/paykitd/internal/models"
	"github.com/paykit-wallet/paykitd/pkg/logger"
)

// Payer runs evaluate, execute and commit as one step. The global daily
// budget is shared by every peer, so payments are serialized on it.
type Payer struct {
	logger    *logger.Logger
	evaluator *Evaluator
	executor  models.PaymentExecutor
	metrics   *metrics.Recorder

	// budget is held from evaluation until the spend is committed
	budget sync.Mutex
}

func NewPayer(evaluator *Evaluator, executor models.PaymentExecutor, recorder *metrics.Recorder, logger *logger.Logger) *Payer {
	return &Payer{
		logger:    logger.With("component", "payer"),
		evaluator: evaluator,
		executor:  executor,
		metrics:   recorder,
	}
}

// Pay executes intent when the evaluator approves it. A denial or a payment
// that needs approval is returned with Executed false and no error.
func (p *Payer) Pay(ctx context.Context, intent models.PaymentIntent) (*models.PaymentOutcome, error) {
	if intent.AmountSats == 0 {
		return nil, models.ErrInvalidAmount
	}
	if intent.PeerPubkey == "" {
		return nil, fmt.Errorf("%w: peer is required", models.ErrInvalidArgument)
	}

	p.budget.Lock()
	defer p.budget.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if intent.MethodID == "" {
		settings, err := p.evaluator.Settings(ctx)
		if err != nil {
			return nil, err
		}
		intent.MethodID = settings.DefaultMethodID
	}

	decision, err := p.evaluator.Evaluate(ctx, intent.PeerPubkey, intent.AmountSats, intent.MethodID)
	if err != nil {
		return nil, err
	}
	outcome := &models.PaymentOutcome{Decision: decision}
	if !decision.IsApproved() {
		return outcome, nil
	}

	if err := p.execute(ctx, intent, outcome); err != nil {
		p.metrics.RecordPayment(intent.MethodID, "failed")
		p.logger.Warn("Payment failed", "peer", intent.PeerPubkey, "amount", intent.AmountSats,
			"method", intent.MethodID, "error", err)
		return outcome, err
	}
	outcome.Executed = true
	p.metrics.RecordPayment(intent.MethodID, "succeeded")

	if err := p.evaluator.Commit(ctx, intent.PeerPubkey, intent.AmountSats); err != nil {
		p.logger.Error("Payment sent but spend not recorded", "peer", intent.PeerPubkey,
			"amount", intent.AmountSats, "error", err)
		return outcome, fmt.Errorf("failed to record spend: %w", err)
	}
	p.metrics.RecordCommit(intent.MethodID, intent.AmountSats)
	p.logger.Info("Payment sent", "peer", intent.PeerPubkey, "amount", intent.AmountSats,
		"method", intent.MethodID, "rule", decision.RuleID)
	return outcome, nil
}

func (p *Payer) execute(ctx context.Context, intent models.PaymentIntent, outcome *models.PaymentOutcome) error {
	switch intent.MethodID {
	case models.MethodLightning:
		if intent.Invoice == "" {
			return &models.PaymentError{Kind: models.PaymentErrInvalidRecipient, Message: "invoice is required"}
		}
		amount := intent.AmountSats
		res, err := p.executor.PayLightning(ctx, intent.Invoice, &amount)
		if err != nil {
			return asPaymentError(err)
		}
		outcome.Lightning = res
	case models.MethodOnchain:
		if intent.Address == "" {
			return &models.PaymentError{Kind: models.PaymentErrInvalidRecipient, Message: "address is required"}
		}
		res, err := p.executor.PayOnchain(ctx, intent.Address, intent.AmountSats, intent.FeeRate)
		if err != nil {
			return asPaymentError(err)
		}
		outcome.Onchain = res
	default:
		return &models.PaymentError{
			Kind:    models.PaymentErrUnsupportedMethod,
			Message: fmt.Sprintf("method %q is not supported", intent.MethodID),
		}
	}
	return nil
}

func asPaymentError(err error) error {
	var perr *models.PaymentError
	if errors.As(err, &perr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &models.PaymentError{Kind: models.PaymentErrTimeout, Message: err.Error()}
	}
	return &models.PaymentError{Kind: models.PaymentErrUnknown, Message: err.Error()}
}
