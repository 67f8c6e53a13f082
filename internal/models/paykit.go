package models

import (
	"context"
	"net/http"
)

// PaykitI is the application facade served by the HTTP API. Operations that
// touch the directory act on behalf of the configured owner identity.
type PaykitI interface {
	// Start schedules the background discovery and cleanup jobs
	Start() error
	// Stop waits for running jobs to finish
	Stop()

	// Owner returns the normalized identity pubkey, empty when unset
	Owner() string

	EvaluatePayment(ctx context.Context, peer string, amountSats uint64, methodID string) (EvaluationResult, error)
	Pay(ctx context.Context, intent PaymentIntent) (*PaymentOutcome, error)
	GetSettings(ctx context.Context) (*AutoPaySettings, error)
	UpdateSettings(ctx context.Context, update SettingsUpdate) (*AutoPaySettings, error)
	ListRules(ctx context.Context) ([]*AutoPayRule, error)
	SaveRule(ctx context.Context, rule *AutoPayRule) (*AutoPayRule, error)
	DeleteRule(ctx context.Context, id string) error
	ListPeerLimits(ctx context.Context) ([]*PeerSpendingLimit, error)
	SetPeerLimit(ctx context.Context, peer string, limitSats uint64, period Period) (*PeerSpendingLimit, error)
	RemovePeerLimit(ctx context.Context, peer string) error

	DiscoverProposals(ctx context.Context) (*ProposalDiscovery, error)
	ListProposals(ctx context.Context, status ProposalStatus) ([]*SubscriptionProposal, error)
	ListSentProposals(ctx context.Context) ([]*SentProposal, error)
	SendProposal(ctx context.Context, recipient string, amountSats uint64, frequency Frequency, description string) (string, error)
	AcceptProposal(ctx context.Context, id string, enableAutopay bool, limitSats *uint64) (*Subscription, error)
	DeclineProposal(ctx context.Context, id string) error
	CancelSentProposal(ctx context.Context, id string) error
	CleanupOrphanedProposals(ctx context.Context) (int, error)
	ListSubscriptions(ctx context.Context) ([]*Subscription, error)
	CancelSubscription(ctx context.Context, id string) error
	// RecordSubscriptionPayment counts a completed payment against the subscription
	RecordSubscriptionPayment(ctx context.Context, id string) (*Subscription, error)

	DiscoverRequests(ctx context.Context) (*RequestDiscovery, error)
	// PublishNoiseEndpoint republishes the configured endpoint with the local Noise key
	PublishNoiseEndpoint(ctx context.Context) (*NoiseEndpoint, error)
	ListRequests(ctx context.Context, direction Direction) ([]*RequestView, error)
	GetRequest(ctx context.Context, id string) (*RequestView, error)
	// DeleteRequest removes the local copy only
	DeleteRequest(ctx context.Context, id string) error
	SendRequest(ctx context.Context, recipient string, amountSats uint64, methodID, description string, expiresInDays int) (*PaymentRequest, error)
	AcceptRequest(ctx context.Context, id string) (*PaymentRequest, error)
	DeclineRequest(ctx context.Context, id string) error
	CancelSentRequest(ctx context.Context, id string) error
	CleanupOrphanedRequests(ctx context.Context) (int, error)

	ListContacts(ctx context.Context) ([]*Contact, error)
	AddContact(ctx context.Context, contact *Contact) error
	RemoveContact(ctx context.Context, pubkey string) error

	// MetricsHandler serves the prometheus registry
	MetricsHandler() http.Handler
}

// APIServer is the transport in front of PaykitI
type APIServer interface {
	Start()
	Shutdown() error
}
