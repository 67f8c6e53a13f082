package models

import "time"

// Frequency is how often a subscription bills.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// Period maps a billing frequency onto the matching spending window.
func (f Frequency) Period() Period {
	switch f {
	case FrequencyWeekly:
		return PeriodWeekly
	case FrequencyMonthly:
		return PeriodMonthly
	case FrequencyYearly:
		return PeriodYearly
	default:
		return PeriodDaily
	}
}

// ProposalStatus is the subscriber-local status of a proposal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "PENDING"
	ProposalAccepted ProposalStatus = "ACCEPTED"
	ProposalDeclined ProposalStatus = "DECLINED"
)

// SubscriptionProposal is a recurring payment offer published by a provider
// in the provider's own storage. The subscriber can never delete it.
type SubscriptionProposal struct {
	ID               string         `json:"id" gorm:"column:id;primaryKey"`
	ProviderPubkey   string         `json:"provider_pubkey" gorm:"column:provider_pubkey;index"`
	SubscriberPubkey string         `json:"subscriber_pubkey" gorm:"column:subscriber_pubkey"`
	AmountSats       uint64         `json:"amount_sats" gorm:"column:amount_sats"`
	Frequency        Frequency      `json:"frequency" gorm:"column:frequency"`
	Description      string         `json:"description" gorm:"column:description"`
	CreatedAt        time.Time      `json:"created_at" gorm:"column:created_at"`
	Status           ProposalStatus `json:"status" gorm:"column:status;index"`
}

func (SubscriptionProposal) TableName() string {
	return "subscription_proposals"
}

// Subscription is the local materialization of an accepted proposal.
type Subscription struct {
	ID             string     `json:"id" gorm:"column:id;primaryKey"`
	ProposalID     string     `json:"proposal_id" gorm:"column:proposal_id;uniqueIndex"`
	ProviderPubkey string     `json:"provider_pubkey" gorm:"column:provider_pubkey;index"`
	AmountSats     uint64     `json:"amount_sats" gorm:"column:amount_sats"`
	Frequency      Frequency  `json:"frequency" gorm:"column:frequency"`
	Description    string     `json:"description" gorm:"column:description"`
	IsActive       bool       `json:"is_active" gorm:"column:is_active"`
	LastPaymentAt  *time.Time `json:"last_payment_at,omitempty" gorm:"column:last_payment_at"`
	PaymentCount   int        `json:"payment_count" gorm:"column:payment_count"`
	CreatedAt      time.Time  `json:"created_at" gorm:"column:created_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// SentProposal tracks a proposal this wallet published as a provider.
type SentProposal struct {
	ID              string    `json:"id" gorm:"column:id;primaryKey"`
	RecipientPubkey string    `json:"recipient_pubkey" gorm:"column:recipient_pubkey;index"`
	AmountSats      uint64    `json:"amount_sats" gorm:"column:amount_sats"`
	Frequency       Frequency `json:"frequency" gorm:"column:frequency"`
	Description     string    `json:"description" gorm:"column:description"`
	CreatedAt       time.Time `json:"created_at" gorm:"column:created_at"`
}

func (SentProposal) TableName() string {
	return "sent_proposals"
}
