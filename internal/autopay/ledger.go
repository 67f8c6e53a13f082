package autopay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paykit-wallet/paykitd/internal/models"
)

// Scope selects the budget a reservation counts against. An empty Peer is
// the global daily budget.
type Scope struct {
	Peer string
}

func GlobalScope() Scope {
	return Scope{}
}

func PeerScope(pubkey string) Scope {
	return Scope{Peer: pubkey}
}

func (s Scope) IsGlobal() bool {
	return s.Peer == ""
}

func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return "peer " + s.Peer
}

// Ledger tracks spend against the global daily budget and per-peer limits.
// Writes are not atomic with payment execution and not versioned.
type Ledger struct {
	store             models.AutoPayStorage
	defaultDailyLimit uint64
}

func NewLedger(store models.AutoPayStorage, defaultDailyLimit uint64) *Ledger {
	return &Ledger{store: store, defaultDailyLimit: defaultDailyLimit}
}

// exceeds reports spent+amount > limit without overflowing.
func exceeds(spent, amount, limit uint64) bool {
	return amount > limit || spent > limit-amount
}

// ResetSettingsIfElapsed starts a new global window when the current one
// is older than DailyResetPeriod. It reports whether settings changed.
func ResetSettingsIfElapsed(settings *models.AutoPaySettings, now time.Time) bool {
	if now.Sub(settings.LastResetAt) <= models.DailyResetPeriod {
		return false
	}
	settings.CurrentDailySpent = 0
	settings.LastResetAt = now
	return true
}

// ResetPeerIfElapsed starts a new peer window once now reaches ResetAt.
// The boundary advances by whole periods until it lies after now.
func ResetPeerIfElapsed(limit *models.PeerSpendingLimit, now time.Time) bool {
	if now.Before(limit.ResetAt) {
		return false
	}
	limit.SpentSats = 0
	if limit.ResetAt.IsZero() {
		limit.ResetAt = limit.Period.Next(now)
		return true
	}
	for !limit.ResetAt.After(now) {
		limit.ResetAt = limit.Period.Next(limit.ResetAt)
	}
	return true
}

// loadSettings returns persisted settings or the defaults when none exist.
func (l *Ledger) loadSettings(ctx context.Context, now time.Time) (*models.AutoPaySettings, error) {
	settings, err := l.store.GetSettings(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return models.DefaultAutoPaySettings(l.defaultDailyLimit, now), nil
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// CheckAndReserve resets an elapsed window, then adds amount to the scope's
// spend unless that would exceed its limit. A peer without a limit always
// succeeds and nothing is written.
func (l *Ledger) CheckAndReserve(ctx context.Context, scope Scope, amount uint64, now time.Time) error {
	if scope.IsGlobal() {
		settings, err := l.loadSettings(ctx, now)
		if err != nil {
			return fmt.Errorf("failed to load autopay settings: %w", err)
		}
		ResetSettingsIfElapsed(settings, now)
		if exceeds(settings.CurrentDailySpent, amount, settings.GlobalDailyLimit) {
			// the reset still has to stick
			if err := l.store.SaveSettings(ctx, settings); err != nil {
				return fmt.Errorf("failed to save autopay settings: %w", err)
			}
			return &models.LimitExceededError{
				Scope:     scope.String(),
				Limit:     settings.GlobalDailyLimit,
				Spent:     settings.CurrentDailySpent,
				Requested: amount,
			}
		}
		settings.CurrentDailySpent += amount
		if err := l.store.SaveSettings(ctx, settings); err != nil {
			return fmt.Errorf("failed to save autopay settings: %w", err)
		}
		return nil
	}

	limit, err := l.store.GetPeerLimit(ctx, scope.Peer)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load peer limit: %w", err)
	}
	reset := ResetPeerIfElapsed(limit, now)
	if exceeds(limit.SpentSats, amount, limit.LimitSats) {
		if reset {
			if err := l.store.SavePeerLimit(ctx, limit); err != nil {
				return fmt.Errorf("failed to save peer limit: %w", err)
			}
		}
		return &models.LimitExceededError{
			Scope:     scope.String(),
			Limit:     limit.LimitSats,
			Spent:     limit.SpentSats,
			Requested: amount,
		}
	}
	limit.SpentSats += amount
	if err := l.store.SavePeerLimit(ctx, limit); err != nil {
		return fmt.Errorf("failed to save peer limit: %w", err)
	}
	return nil
}

// Release gives back amount previously reserved in scope, saturating at zero.
func (l *Ledger) Release(ctx context.Context, scope Scope, amount uint64) error {
	if scope.IsGlobal() {
		settings, err := l.store.GetSettings(ctx)
		if err != nil {
			return fmt.Errorf("failed to load autopay settings: %w", err)
		}
		settings.CurrentDailySpent = saturatingSub(settings.CurrentDailySpent, amount)
		return l.store.SaveSettings(ctx, settings)
	}

	limit, err := l.store.GetPeerLimit(ctx, scope.Peer)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load peer limit: %w", err)
	}
	limit.SpentSats = saturatingSub(limit.SpentSats, amount)
	return l.store.SavePeerLimit(ctx, limit)
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
