package models

import "context"

// AutoPayStorage persists settings, peer limits and rules. Records are
// read-modify-write without versioning; the last write wins.
type AutoPayStorage interface {
	GetSettings(ctx context.Context) (*AutoPaySettings, error)
	SaveSettings(ctx context.Context, settings *AutoPaySettings) error

	GetPeerLimit(ctx context.Context, peerPubkey string) (*PeerSpendingLimit, error)
	SavePeerLimit(ctx context.Context, limit *PeerSpendingLimit) error
	DeletePeerLimit(ctx context.Context, peerPubkey string) error
	ListPeerLimits(ctx context.Context) ([]*PeerSpendingLimit, error)

	GetRule(ctx context.Context, id string) (*AutoPayRule, error)
	SaveRule(ctx context.Context, rule *AutoPayRule) error
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context) ([]*AutoPayRule, error)
	// GetMatchingRules narrows the candidate set to enabled rules whose
	// amount cap allows amount. Set membership is left to the matcher.
	GetMatchingRules(ctx context.Context, peerPubkey, methodID string, amount uint64) ([]*AutoPayRule, error)
}

type ProposalStorage interface {
	GetProposal(ctx context.Context, id string) (*SubscriptionProposal, error)
	SaveProposal(ctx context.Context, proposal *SubscriptionProposal) error
	DeleteProposal(ctx context.Context, id string) error
	// ListProposals returns proposals with the given status, or all when status is empty.
	ListProposals(ctx context.Context, status ProposalStatus) ([]*SubscriptionProposal, error)

	GetSentProposal(ctx context.Context, id string) (*SentProposal, error)
	SaveSentProposal(ctx context.Context, sent *SentProposal) error
	DeleteSentProposal(ctx context.Context, id string) error
	ListSentProposals(ctx context.Context) ([]*SentProposal, error)
}

type SubscriptionStorage interface {
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	SaveSubscription(ctx context.Context, subscription *Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
	ListSubscriptions(ctx context.Context) ([]*Subscription, error)
}

type PaymentRequestStorage interface {
	GetPaymentRequest(ctx context.Context, id string) (*PaymentRequest, error)
	SavePaymentRequest(ctx context.Context, request *PaymentRequest) error
	DeletePaymentRequest(ctx context.Context, id string) error
	// ListPaymentRequests returns requests in the given direction, or all when direction is empty.
	ListPaymentRequests(ctx context.Context, direction Direction) ([]*PaymentRequest, error)

	GetSentPaymentRequest(ctx context.Context, id string) (*SentPaymentRequest, error)
	SaveSentPaymentRequest(ctx context.Context, sent *SentPaymentRequest) error
	DeleteSentPaymentRequest(ctx context.Context, id string) error
	ListSentPaymentRequests(ctx context.Context) ([]*SentPaymentRequest, error)
}

type ContactStorage interface {
	SaveContact(ctx context.Context, contact *Contact) error
	// DeleteContact removes the contact together with its peer spending limit.
	DeleteContact(ctx context.Context, pubkey string) error
	ListContacts(ctx context.Context) ([]*Contact, error)
}

type KeyStorage interface {
	GetKey(ctx context.Context, name string) (string, error)
	SaveKey(ctx context.Context, name, value string) error
}

// Repository is the local persistent storage of the wallet.
type Repository interface {
	AutoPayStorage
	ProposalStorage
	SubscriptionStorage
	PaymentRequestStorage
	ContactStorage
	KeyStorage

	Close() error
}
