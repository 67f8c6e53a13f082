package paykit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/paykit-wallet/paykitd/internal/autopay"
	"github.com/paykit-wallet/paykitd/internal/config"
	"github.com/paykit-wallet/paykitd/internal/metrics"
	"github.com/paykit-wallet/paykitd/internal/models"
	"github.com/paykit-wallet/paykitd/internal/proposals"
	"github.com/paykit-wallet/paykitd/internal/requests"
	"github.com/paykit-wallet/paykitd/pkg/logger"
	"github.com/paykit-wallet/paykitd/pkg/validation"
)

const (
	// jobTimeout bounds a single scheduled discovery or cleanup run
	jobTimeout = 2 * time.Minute
)

// Paykit is the main struct for the paykit daemon.
// It composes the auto-pay engine with the proposal and payment request
// lifecycles and runs their background jobs.
type Paykit struct {
	logger *logger.Logger
	config *config.Config

	repo      models.Repository
	metrics   *metrics.Recorder
	evaluator *autopay.Evaluator
	payer     *autopay.Payer
	proposals *proposals.Lifecycle
	requests  *requests.Lifecycle

	cron *cron.Cron
}

// NewPaykit creates a new Paykit instance
func NewPaykit(
	repo models.Repository,
	directory models.DirectoryStore,
	executor models.PaymentExecutor,
	recorder *metrics.Recorder,
	logger *logger.Logger,
	cfg *config.Config,
) *Paykit {
	evaluator := autopay.NewEvaluator(repo, logger,
		autopay.WithMetrics(recorder),
		autopay.WithDefaultDailyLimit(cfg.DefaultDailyLimitSats),
	)
	return &Paykit{
		logger:    logger,
		config:    cfg,
		repo:      repo,
		metrics:   recorder,
		evaluator: evaluator,
		payer:     autopay.NewPayer(evaluator, executor, recorder, logger),
		proposals: proposals.NewLifecycle(repo, directory, evaluator, logger, proposals.WithMetrics(recorder)),
		requests: requests.NewLifecycle(repo, directory, logger,
			requests.WithMetrics(recorder),
			requests.WithDefaultExpiryDays(cfg.DefaultRequestExpiryDays),
		),
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger}))),
	}
}

// Start schedules discovery and cleanup. Jobs with an empty schedule are skipped.
func (p *Paykit) Start() error {
	if p.config.DiscoverySchedule != "" {
		if _, err := p.cron.AddFunc(p.config.DiscoverySchedule, p.runDiscovery); err != nil {
			return fmt.Errorf("failed to schedule discovery: %w", err)
		}
	}
	if p.config.CleanupSchedule != "" {
		if _, err := p.cron.AddFunc(p.config.CleanupSchedule, p.runCleanup); err != nil {
			return fmt.Errorf("failed to schedule cleanup: %w", err)
		}
	}
	if p.config.NoiseHost != "" && p.Owner() != "" {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		if _, err := p.PublishNoiseEndpoint(ctx); err != nil {
			p.logger.Warn("Failed to publish noise endpoint", "error", err)
		}
		cancel()
	}
	p.cron.Start()
	p.logger.Info("Background jobs started", "discovery", p.config.DiscoverySchedule, "cleanup", p.config.CleanupSchedule)
	return nil
}

// Stop waits for running jobs to finish
func (p *Paykit) Stop() {
	<-p.cron.Stop().Done()
}

func (p *Paykit) Owner() string {
	return p.config.OwnerPubkey
}

func (p *Paykit) runDiscovery() {
	if p.Owner() == "" {
		p.logger.Debug("Skipping discovery, no identity configured")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	proposalsFound, err := p.DiscoverProposals(ctx)
	if err != nil {
		p.logger.Error("Failed to discover proposals", "error", err)
	} else if proposalsFound.NewCount > 0 {
		p.logger.Info("Discovered new proposals", "count", proposalsFound.NewCount)
	}

	requestsFound, err := p.DiscoverRequests(ctx)
	if err != nil {
		p.logger.Error("Failed to discover payment requests", "error", err)
	} else if len(requestsFound.Imported) > 0 {
		p.logger.Info("Discovered new payment requests", "count", len(requestsFound.Imported))
	}
}

func (p *Paykit) runCleanup() {
	if p.Owner() == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := p.CleanupOrphanedProposals(ctx); err != nil {
		p.logger.Error("Failed to clean up orphaned proposals", "error", err)
	}
	if _, err := p.CleanupOrphanedRequests(ctx); err != nil {
		p.logger.Error("Failed to clean up orphaned payment requests", "error", err)
	}
}

// PublishNoiseEndpoint advertises the configured Noise host and port with the local key.
func (p *Paykit) PublishNoiseEndpoint(ctx context.Context) (*models.NoiseEndpoint, error) {
	return p.requests.PublishEndpoint(ctx, p.Owner(), p.config.NoiseHost, p.config.NoisePort)
}

func (p *Paykit) EvaluatePayment(ctx context.Context, peer string, amountSats uint64, methodID string) (models.EvaluationResult, error) {
	return p.evaluator.Evaluate(ctx, peer, amountSats, methodID)
}

func (p *Paykit) Pay(ctx context.Context, intent models.PaymentIntent) (*models.PaymentOutcome, error) {
	return p.payer.Pay(ctx, intent)
}

func (p *Paykit) GetSettings(ctx context.Context) (*models.AutoPaySettings, error) {
	return p.evaluator.Settings(ctx)
}

func (p *Paykit) UpdateSettings(ctx context.Context, update models.SettingsUpdate) (*models.AutoPaySettings, error) {
	return p.evaluator.UpdateSettings(ctx, update)
}

func (p *Paykit) ListRules(ctx context.Context) ([]*models.AutoPayRule, error) {
	return p.evaluator.ListRules(ctx)
}

func (p *Paykit) SaveRule(ctx context.Context, rule *models.AutoPayRule) (*models.AutoPayRule, error) {
	return p.evaluator.SaveRule(ctx, rule)
}

func (p *Paykit) DeleteRule(ctx context.Context, id string) error {
	return p.evaluator.DeleteRule(ctx, id)
}

func (p *Paykit) ListPeerLimits(ctx context.Context) ([]*models.PeerSpendingLimit, error) {
	return p.evaluator.ListPeerLimits(ctx)
}

func (p *Paykit) SetPeerLimit(ctx context.Context, peer string, limitSats uint64, period models.Period) (*models.PeerSpendingLimit, error) {
	return p.evaluator.SetPeerLimit(ctx, peer, limitSats, period)
}

func (p *Paykit) RemovePeerLimit(ctx context.Context, peer string) error {
	return p.evaluator.RemovePeerLimit(ctx, peer)
}

// DiscoverProposals polls contacts for proposals addressed to the owner
func (p *Paykit) DiscoverProposals(ctx context.Context) (*models.ProposalDiscovery, error) {
	return p.proposals.DiscoverIncoming(ctx, p.Owner())
}

func (p *Paykit) ListProposals(ctx context.Context, status models.ProposalStatus) ([]*models.SubscriptionProposal, error) {
	return p.proposals.ListProposals(ctx, status)
}

func (p *Paykit) ListSentProposals(ctx context.Context) ([]*models.SentProposal, error) {
	return p.proposals.ListSentProposals(ctx)
}

func (p *Paykit) SendProposal(ctx context.Context, recipient string, amountSats uint64, frequency models.Frequency, description string) (string, error) {
	return p.proposals.SendProposal(ctx, p.Owner(), recipient, amountSats, frequency, description)
}

func (p *Paykit) AcceptProposal(ctx context.Context, id string, enableAutopay bool, limitSats *uint64) (*models.Subscription, error) {
	return p.proposals.Accept(ctx, id, enableAutopay, limitSats)
}

func (p *Paykit) DeclineProposal(ctx context.Context, id string) error {
	return p.proposals.Decline(ctx, id)
}

func (p *Paykit) CancelSentProposal(ctx context.Context, id string) error {
	return p.proposals.CancelSent(ctx, p.Owner(), id)
}

func (p *Paykit) CleanupOrphanedProposals(ctx context.Context) (int, error) {
	return p.proposals.CleanupOrphaned(ctx, p.Owner())
}

func (p *Paykit) ListSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	return p.proposals.ListSubscriptions(ctx)
}

func (p *Paykit) CancelSubscription(ctx context.Context, id string) error {
	return p.proposals.CancelSubscription(ctx, id)
}

func (p *Paykit) RecordSubscriptionPayment(ctx context.Context, id string) (*models.Subscription, error) {
	return p.proposals.RecordPayment(ctx, id, time.Now().UTC())
}

// DiscoverRequests polls contacts for payment requests addressed to the owner
func (p *Paykit) DiscoverRequests(ctx context.Context) (*models.RequestDiscovery, error) {
	return p.requests.Discover(ctx, p.Owner())
}

func (p *Paykit) ListRequests(ctx context.Context, direction models.Direction) ([]*models.RequestView, error) {
	return p.requests.List(ctx, direction)
}

func (p *Paykit) GetRequest(ctx context.Context, id string) (*models.RequestView, error) {
	return p.requests.Get(ctx, id)
}

func (p *Paykit) DeleteRequest(ctx context.Context, id string) error {
	return p.requests.Delete(ctx, id)
}

func (p *Paykit) SendRequest(ctx context.Context, recipient string, amountSats uint64, methodID, description string, expiresInDays int) (*models.PaymentRequest, error) {
	return p.requests.Send(ctx, p.Owner(), recipient, amountSats, methodID, description, expiresInDays)
}

func (p *Paykit) AcceptRequest(ctx context.Context, id string) (*models.PaymentRequest, error) {
	return p.requests.Accept(ctx, id)
}

func (p *Paykit) DeclineRequest(ctx context.Context, id string) error {
	return p.requests.Decline(ctx, id)
}

func (p *Paykit) CancelSentRequest(ctx context.Context, id string) error {
	return p.requests.CancelSent(ctx, p.Owner(), id)
}

func (p *Paykit) CleanupOrphanedRequests(ctx context.Context) (int, error) {
	return p.requests.CleanupOrphaned(ctx, p.Owner())
}

func (p *Paykit) ListContacts(ctx context.Context) ([]*models.Contact, error) {
	contacts, err := p.repo.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, nil
}

// AddContact follows a peer so discovery polls it
func (p *Paykit) AddContact(ctx context.Context, contact *models.Contact) error {
	pk, err := validation.ValidateAndNormalizePubkey(contact.Pubkey)
	if err != nil {
		return fmt.Errorf("%w: %s", models.ErrInvalidArgument, err)
	}
	contact.Pubkey = pk
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now().UTC()
	}
	if err := p.repo.SaveContact(ctx, contact); err != nil {
		return fmt.Errorf("failed to save contact: %w", err)
	}
	p.logger.Info("Contact added", "pubkey", pk)
	return nil
}

// RemoveContact unfollows a peer and drops its spending limit
func (p *Paykit) RemoveContact(ctx context.Context, pubkey string) error {
	if err := p.repo.DeleteContact(ctx, validation.NormalizePubkey(pubkey)); err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	return nil
}

func (p *Paykit) MetricsHandler() http.Handler {
	return p.metrics.Handler()
}

var _ models.PaykitI = (*Paykit)(nil)

// cronLogger routes cron's own messages into the service logger
type cronLogger struct {
	logger *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
