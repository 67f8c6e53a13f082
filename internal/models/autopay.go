package models

import (
	"time"
)

// SettingsID is the key of the single auto-pay settings row of a wallet database.
const SettingsID = "default"

// DailyResetPeriod is the length of the global spending window.
const DailyResetPeriod = 24 * time.Hour

// AutoPaySettings holds the global auto-pay switch and the rolling daily budget.
type AutoPaySettings struct {
	// ID is always SettingsID.
	ID string `json:"-" gorm:"column:id;primaryKey"`
	// Enabled is the global auto-pay switch.
	Enabled bool `json:"enabled" gorm:"column:enabled"`
	// DefaultMethodID is the payment method used when a caller does not name one.
	DefaultMethodID string `json:"default_method_id" gorm:"column:default_method_id"`
	// GlobalDailyLimit is the maximum amount in sats spent autonomously per window.
	GlobalDailyLimit uint64 `json:"global_daily_limit" gorm:"column:global_daily_limit"`
	// CurrentDailySpent is the amount spent in the current window.
	CurrentDailySpent uint64 `json:"current_daily_spent" gorm:"column:current_daily_spent"`
	// LastResetAt is the start of the current window.
	LastResetAt time.Time `json:"last_reset_at" gorm:"column:last_reset_at"`
}

func (AutoPaySettings) TableName() string {
	return "autopay_settings"
}

// DefaultAutoPaySettings returns the settings used before the user saved any.
func DefaultAutoPaySettings(dailyLimit uint64, now time.Time) *AutoPaySettings {
	return &AutoPaySettings{
		ID:               SettingsID,
		Enabled:          false,
		DefaultMethodID:  MethodLightning,
		GlobalDailyLimit: dailyLimit,
		LastResetAt:      now,
	}
}

// SettingsUpdate carries the user-editable settings. Nil fields are left as they are.
type SettingsUpdate struct {
	Enabled          *bool   `json:"enabled"`
	DefaultMethodID  *string `json:"default_method_id"`
	GlobalDailyLimit *uint64 `json:"global_daily_limit"`
}

// Period is the length of a peer spending window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly:
		return true
	}
	return false
}

// Next returns the boundary one period after t.
func (p Period) Next(t time.Time) time.Time {
	switch p {
	case PeriodWeekly:
		return t.AddDate(0, 0, 7)
	case PeriodMonthly:
		return t.AddDate(0, 1, 0)
	case PeriodYearly:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// PeerSpendingLimit caps how much may be paid autonomously to one peer per period.
type PeerSpendingLimit struct {
	// PeerPubkey is the peer the limit applies to.
	PeerPubkey string `json:"peer_pubkey" gorm:"column:peer_pubkey;primaryKey"`
	// LimitSats is the budget per period.
	LimitSats uint64 `json:"limit_sats" gorm:"column:limit_sats"`
	// SpentSats is the amount spent in the current period.
	SpentSats uint64 `json:"spent_sats" gorm:"column:spent_sats"`
	// Period is the window length.
	Period Period `json:"period" gorm:"column:period"`
	// ResetAt is the end of the current window.
	ResetAt time.Time `json:"reset_at" gorm:"column:reset_at"`
}

func (PeerSpendingLimit) TableName() string {
	return "peer_spending_limits"
}

// AutoPayRule is a policy that approves matching payments without prompting.
// Empty AllowedPeers or AllowedMethods match anything.
type AutoPayRule struct {
	// ID is the unique identifier of the rule.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// Name is the display name.
	Name string `json:"name" gorm:"column:name"`
	// PeerPubkey, if set, restricts the rule to a single peer.
	PeerPubkey string `json:"peer_pubkey,omitempty" gorm:"column:peer_pubkey;index"`
	// AllowedMethods lists the payment methods the rule covers.
	AllowedMethods StringSet `json:"allowed_methods" gorm:"column:allowed_methods;type:text"`
	// AllowedPeers lists the peers the rule covers.
	AllowedPeers StringSet `json:"allowed_peers" gorm:"column:allowed_peers;type:text"`
	// MaxAmountSats is the largest single payment the rule approves.
	MaxAmountSats uint64 `json:"max_amount_sats" gorm:"column:max_amount_sats"`
	// IsEnabled toggles the rule.
	IsEnabled bool `json:"is_enabled" gorm:"column:is_enabled;index"`
	// Priority orders rules, lower first.
	Priority int `json:"priority" gorm:"column:priority"`
	// CreatedAt breaks priority ties.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

func (AutoPayRule) TableName() string {
	return "autopay_rules"
}
