package proposals

import (
	"context"
	"fmt"
	"time"

	"github.com/paykit-wallet/paykitd/internal/models"
)

func (l *Lifecycle) ListSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	subs, err := l.store.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// CancelSubscription deactivates a subscription. The provider's auto-pay
// rules are disabled unless another active subscription with the same
// provider remains.
func (l *Lifecycle) CancelSubscription(ctx context.Context, id string) error {
	sub, err := l.store.GetSubscription(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}
	if !sub.IsActive {
		return fmt.Errorf("%w: subscription %s is not active", models.ErrInvalidTransition, id)
	}
	sub.IsActive = false
	if err := l.store.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	l.metrics.RecordTransition("subscription", "cancelled")
	l.logger.Info("Subscription cancelled", "id", id, "provider", sub.ProviderPubkey)

	subs, err := l.store.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}
	for _, other := range subs {
		if other.IsActive && other.ProviderPubkey == sub.ProviderPubkey {
			return nil
		}
	}

	rules, err := l.autopay.ListRules(ctx)
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if rule.PeerPubkey != sub.ProviderPubkey || !rule.IsEnabled {
			continue
		}
		rule.IsEnabled = false
		if _, err := l.autopay.SaveRule(ctx, rule); err != nil {
			return fmt.Errorf("failed to disable rule %s: %w", rule.ID, err)
		}
		l.logger.Debug("Disabled auto-pay rule", "rule", rule.ID, "provider", sub.ProviderPubkey)
	}
	return nil
}

// RecordPayment notes a payment made for an active subscription at paidAt.
func (l *Lifecycle) RecordPayment(ctx context.Context, id string, paidAt time.Time) (*models.Subscription, error) {
	sub, err := l.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if !sub.IsActive {
		return nil, fmt.Errorf("%w: subscription %s is not active", models.ErrInvalidTransition, id)
	}
	paidAt = paidAt.UTC()
	sub.LastPaymentAt = &paidAt
	sub.PaymentCount++
	if err := l.store.SaveSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	return sub, nil
}
