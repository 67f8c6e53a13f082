// Package autopay decides whether an outgoing payment may proceed without
// prompting the user, and records the spend once it did.
package autopay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paykit-wallet/paykitd/internal/metrics"
	"github.com/paykit-wallet/paykitd/internal/models"
	"github.com/paykit-wallet/paykitd/pkg/logger"
)

// Clock returns the current time.
type Clock func() time.Time

type Evaluator struct {
	logger            *logger.Logger
	store             models.AutoPayStorage
	ledger            *Ledger
	metrics           *metrics.Recorder
	now               Clock
	defaultDailyLimit uint64
}

type Option func(*Evaluator)

func WithClock(clock Clock) Option {
	return func(e *Evaluator) {
		e.now = clock
	}
}

func WithMetrics(recorder *metrics.Recorder) Option {
	return func(e *Evaluator) {
		e.metrics = recorder
	}
}

// WithDefaultDailyLimit sets the global budget used while no settings are saved.
func WithDefaultDailyLimit(sats uint64) Option {
	return func(e *Evaluator) {
		e.defaultDailyLimit = sats
	}
}

func NewEvaluator(store models.AutoPayStorage, logger *logger.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{
		logger:            logger.With("component", "autopay"),
		store:             store,
		now:               time.Now,
		defaultDailyLimit: 100_000,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.ledger = NewLedger(store, e.defaultDailyLimit)
	return e
}

// Evaluate decides a payment of amount sats to peer via method. Elapsed
// windows are reset and persisted even when the result is a denial. Nothing
// is reserved; call Commit after the payment succeeded.
func (e *Evaluator) Evaluate(ctx context.Context, peer string, amount uint64, method string) (models.EvaluationResult, error) {
	result, err := e.evaluate(ctx, peer, amount, method)
	if err != nil {
		return models.EvaluationResult{}, err
	}
	e.metrics.RecordEvaluation(string(result.Outcome))
	e.logger.Debug("Evaluated payment", "peer", peer, "amount", amount, "method", method,
		"outcome", result.Outcome, "reason", result.Reason, "rule", result.RuleID)
	return result, nil
}

func (e *Evaluator) evaluate(ctx context.Context, peer string, amount uint64, method string) (models.EvaluationResult, error) {
	now := e.now()

	settings, err := e.ledger.loadSettings(ctx, now)
	if err != nil {
		return models.EvaluationResult{}, fmt.Errorf("failed to load autopay settings: %w", err)
	}
	if !settings.Enabled {
		return models.Denied(models.ReasonDisabled), nil
	}

	if ResetSettingsIfElapsed(settings, now) {
		if err := e.store.SaveSettings(ctx, settings); err != nil {
			return models.EvaluationResult{}, fmt.Errorf("failed to reset daily window: %w", err)
		}
	}
	if exceeds(settings.CurrentDailySpent, amount, settings.GlobalDailyLimit) {
		return models.Denied(models.ReasonDailyLimitExceeds), nil
	}

	limit, err := e.store.GetPeerLimit(ctx, peer)
	switch {
	case errors.Is(err, models.ErrNotFound):
	case err != nil:
		return models.EvaluationResult{}, fmt.Errorf("failed to load peer limit: %w", err)
	default:
		if ResetPeerIfElapsed(limit, now) {
			if err := e.store.SavePeerLimit(ctx, limit); err != nil {
				return models.EvaluationResult{}, fmt.Errorf("failed to reset peer window: %w", err)
			}
		}
		if exceeds(limit.SpentSats, amount, limit.LimitSats) {
			return models.Denied(models.ReasonPeerLimitExceeds), nil
		}
	}

	if method == "" {
		method = settings.DefaultMethodID
	}
	candidates, err := e.store.GetMatchingRules(ctx, peer, method, amount)
	if err != nil {
		return models.EvaluationResult{}, fmt.Errorf("failed to load rules: %w", err)
	}
	if rule := FindMatch(OrderRules(candidates), peer, amount, method); rule != nil {
		return models.Approved(rule.ID, rule.Name), nil
	}
	return models.NeedsApproval(), nil
}

// Commit records amount against the global budget and the peer's limit.
// A global reservation is released again when the peer limit refuses.
func (e *Evaluator) Commit(ctx context.Context, peer string, amount uint64) error {
	now := e.now()
	if err := e.ledger.CheckAndReserve(ctx, GlobalScope(), amount, now); err != nil {
		return err
	}
	if err := e.ledger.CheckAndReserve(ctx, PeerScope(peer), amount, now); err != nil {
		if relErr := e.ledger.Release(ctx, GlobalScope(), amount); relErr != nil {
			e.logger.Error("Failed to release global reservation", "peer", peer, "amount", amount, "error", relErr)
		}
		return err
	}
	return nil
}

func (e *Evaluator) Settings(ctx context.Context) (*models.AutoPaySettings, error) {
	settings, err := e.ledger.loadSettings(ctx, e.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load autopay settings: %w", err)
	}
	return settings, nil
}

func (e *Evaluator) UpdateSettings(ctx context.Context, update models.SettingsUpdate) (*models.AutoPaySettings, error) {
	settings, err := e.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if update.Enabled != nil {
		settings.Enabled = *update.Enabled
	}
	if update.DefaultMethodID != nil {
		method := strings.TrimSpace(*update.DefaultMethodID)
		if method == "" {
			return nil, fmt.Errorf("%w: default method must not be empty", models.ErrInvalidArgument)
		}
		settings.DefaultMethodID = method
	}
	if update.GlobalDailyLimit != nil {
		settings.GlobalDailyLimit = *update.GlobalDailyLimit
	}
	if err := e.store.SaveSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to save autopay settings: %w", err)
	}
	e.logger.Info("Autopay settings updated", "enabled", settings.Enabled, "daily_limit", settings.GlobalDailyLimit)
	return settings, nil
}

// SaveRule creates or replaces a rule. New rules get an id and a creation time.
func (e *Evaluator) SaveRule(ctx context.Context, rule *models.AutoPayRule) (*models.AutoPayRule, error) {
	if rule == nil {
		return nil, fmt.Errorf("%w: rule is required", models.ErrInvalidArgument)
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = e.now()
	}
	rule.AllowedPeers = models.NewStringSet(rule.AllowedPeers...)
	rule.AllowedMethods = models.NewStringSet(rule.AllowedMethods...)
	if err := e.store.SaveRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}
	e.logger.Info("Autopay rule saved", "rule", rule.ID, "name", rule.Name, "max_amount", rule.MaxAmountSats)
	return rule, nil
}

func (e *Evaluator) DeleteRule(ctx context.Context, id string) error {
	if err := e.store.DeleteRule(ctx, id); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return nil
}

// ListRules returns all rules in evaluation order.
func (e *Evaluator) ListRules(ctx context.Context) ([]*models.AutoPayRule, error) {
	rules, err := e.store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return OrderRules(rules), nil
}

// SetPeerLimit creates or updates the limit for peer. Spend in the current
// window is kept when the period does not change.
func (e *Evaluator) SetPeerLimit(ctx context.Context, peer string, limitSats uint64, period models.Period) (*models.PeerSpendingLimit, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("%w: unknown period %q", models.ErrInvalidArgument, period)
	}
	now := e.now()
	limit, err := e.store.GetPeerLimit(ctx, peer)
	switch {
	case errors.Is(err, models.ErrNotFound):
		limit = &models.PeerSpendingLimit{
			PeerPubkey: peer,
			Period:     period,
			ResetAt:    period.Next(now),
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load peer limit: %w", err)
	case limit.Period != period:
		limit.Period = period
		limit.SpentSats = 0
		limit.ResetAt = period.Next(now)
	}
	limit.LimitSats = limitSats
	if err := e.store.SavePeerLimit(ctx, limit); err != nil {
		return nil, fmt.Errorf("failed to save peer limit: %w", err)
	}
	e.logger.Info("Peer limit set", "peer", peer, "limit", limitSats, "period", period)
	return limit, nil
}

func (e *Evaluator) RemovePeerLimit(ctx context.Context, peer string) error {
	if err := e.store.DeletePeerLimit(ctx, peer); err != nil {
		return fmt.Errorf("failed to delete peer limit: %w", err)
	}
	return nil
}

func (e *Evaluator) ListPeerLimits(ctx context.Context) ([]*models.PeerSpendingLimit, error) {
	limits, err := e.store.ListPeerLimits(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list peer limits: %w", err)
	}
	return limits, nil
}
