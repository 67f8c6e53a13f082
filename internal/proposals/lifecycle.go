// Package proposals manages subscription proposals: discovering the ones
// providers published for this wallet, accepting them into subscriptions and
// tracking the ones this wallet published as a provider.
package proposals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/paykit-wallet/paykitd/internal/directory"
	"github.com/paykit-wallet/paykitd/internal/metrics"
	"github.com/paykit-wallet/paykitd/internal/models"
	"github.com/paykit-wallet/paykitd/pkg/logger"
)

const metricKind = "proposal"

// Storage is the local state the lifecycle reads and writes.
type Storage interface {
	models.ProposalStorage
	models.SubscriptionStorage
	models.ContactStorage
}

// AutoPayManager creates the auto-pay policy for an accepted subscription.
type AutoPayManager interface {
	SaveRule(ctx context.Context, rule *models.AutoPayRule) (*models.AutoPayRule, error)
	ListRules(ctx context.Context) ([]*models.AutoPayRule, error)
	SetPeerLimit(ctx context.Context, peer string, limitSats uint64, period models.Period) (*models.PeerSpendingLimit, error)
}

type Lifecycle struct {
	logger    *logger.Logger
	store     Storage
	directory models.DirectoryStore
	autopay   AutoPayManager
	metrics   *metrics.Recorder
	now       func() time.Time
}

type Option func(*Lifecycle)

func WithClock(clock func() time.Time) Option {
	return func(l *Lifecycle) {
		l.now = clock
	}
}

func WithMetrics(recorder *metrics.Recorder) Option {
	return func(l *Lifecycle) {
		l.metrics = recorder
	}
}

func NewLifecycle(store Storage, dir models.DirectoryStore, autopay AutoPayManager, logger *logger.Logger, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		logger:    logger.With("component", "proposals"),
		store:     store,
		directory: dir,
		autopay:   autopay,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DiscoverIncoming polls every contact for proposals addressed to owner and
// imports unseen ones as pending. A failing contact is logged and skipped.
func (l *Lifecycle) DiscoverIncoming(ctx context.Context, owner string) (*models.ProposalDiscovery, error) {
	if owner == "" {
		return nil, models.ErrNoIdentity
	}
	contacts, err := l.store.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	result := &models.ProposalDiscovery{}
	for _, contact := range contacts {
		if err := ctx.Err(); err != nil {
			result.Failures = multierr.Append(result.Failures, err)
			break
		}
		result.PeersChecked++
		imported, err := l.discoverFrom(ctx, owner, contact.Pubkey)
		result.NewCount += imported
		if err != nil {
			l.logger.Warn("Failed to discover proposals", "peer", contact.Pubkey, "error", err)
			l.metrics.RecordPeerFailure(metricKind, "discover")
			result.Failures = multierr.Append(result.Failures, fmt.Errorf("peer %s: %w", contact.Pubkey, err))
		}
	}
	l.metrics.RecordDiscovered(metricKind, result.NewCount)

	pending, err := l.store.ListProposals(ctx, models.ProposalPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending proposals: %w", err)
	}
	result.Pending = pending
	l.logger.Debug("Proposal discovery finished", "peers", result.PeersChecked, "new", result.NewCount, "pending", len(pending))
	return result, nil
}

func (l *Lifecycle) discoverFrom(ctx context.Context, owner, provider string) (int, error) {
	ids, err := l.directory.ListIDs(ctx, models.RecordSubscriptionProposal, provider, owner)
	if err != nil {
		return 0, err
	}
	var (
		imported int
		errs     error
	)
	for _, id := range ids {
		_, err := l.store.GetProposal(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, models.ErrNotFound) {
			return imported, err
		}
		key := models.RecordKey{
			Kind:            models.RecordSubscriptionProposal,
			OwnerPubkey:     provider,
			RecipientPubkey: owner,
			ID:              id,
		}
		record, err := l.directory.Fetch(ctx, key)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if record == nil {
			continue
		}
		proposal, err := decodeProposal(record.Data, key)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := l.store.SaveProposal(ctx, proposal); err != nil {
			return imported, fmt.Errorf("failed to save proposal: %w", err)
		}
		imported++
	}
	return imported, errs
}

// SendProposal publishes a proposal to recipient in owner's storage and
// tracks it locally.
func (l *Lifecycle) SendProposal(ctx context.Context, owner, recipient string, amountSats uint64, frequency models.Frequency, description string) (string, error) {
	if owner == "" {
		return "", models.ErrNoIdentity
	}
	if amountSats == 0 {
		return "", models.ErrInvalidAmount
	}
	if !frequency.Valid() {
		return "", fmt.Errorf("%w: unknown frequency %q", models.ErrInvalidArgument, frequency)
	}

	proposal := &models.SubscriptionProposal{
		ID:               uuid.NewString(),
		ProviderPubkey:   owner,
		SubscriberPubkey: recipient,
		AmountSats:       amountSats,
		Frequency:        frequency,
		Description:      description,
		CreatedAt:        l.now().UTC(),
	}
	data, err := encodeProposal(proposal)
	if err != nil {
		return "", err
	}
	record := &models.Record{
		Key: models.RecordKey{
			Kind:            models.RecordSubscriptionProposal,
			OwnerPubkey:     owner,
			RecipientPubkey: recipient,
			ID:              proposal.ID,
		},
		Data: data,
	}
	if err := l.directory.Publish(ctx, record); err != nil {
		return "", fmt.Errorf("failed to publish proposal: %w", err)
	}

	sent := &models.SentProposal{
		ID:              proposal.ID,
		RecipientPubkey: recipient,
		AmountSats:      amountSats,
		Frequency:       frequency,
		Description:     description,
		CreatedAt:       proposal.CreatedAt,
	}
	if err := l.store.SaveSentProposal(ctx, sent); err != nil {
		return "", fmt.Errorf("failed to track sent proposal: %w", err)
	}
	l.metrics.RecordTransition(metricKind, "sent")
	l.logger.Info("Proposal sent", "id", proposal.ID, "recipient", recipient, "amount", amountSats, "frequency", frequency)
	return proposal.ID, nil
}

// Accept turns a pending proposal into an active subscription. With
// enableAutopay a rule scoped to the provider is created, and a peer limit
// too when limitSats is given. The provider's record is never touched.
func (l *Lifecycle) Accept(ctx context.Context, id string, enableAutopay bool, limitSats *uint64) (*models.Subscription, error) {
	proposal, err := l.store.GetProposal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	if proposal.Status != models.ProposalPending {
		return nil, fmt.Errorf("%w: proposal %s is %s", models.ErrInvalidTransition, id, proposal.Status)
	}

	proposal.Status = models.ProposalAccepted
	if err := l.store.SaveProposal(ctx, proposal); err != nil {
		return nil, fmt.Errorf("failed to accept proposal: %w", err)
	}

	subscription := &models.Subscription{
		ID:             uuid.NewString(),
		ProposalID:     proposal.ID,
		ProviderPubkey: proposal.ProviderPubkey,
		AmountSats:     proposal.AmountSats,
		Frequency:      proposal.Frequency,
		Description:    proposal.Description,
		IsActive:       true,
		CreatedAt:      l.now().UTC(),
	}
	if err := l.store.SaveSubscription(ctx, subscription); err != nil {
		proposal.Status = models.ProposalPending
		if revertErr := l.store.SaveProposal(ctx, proposal); revertErr != nil {
			l.logger.Error("Failed to revert proposal status", "id", id, "error", revertErr)
		}
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	l.metrics.RecordTransition(metricKind, "accepted")
	l.logger.Info("Proposal accepted", "id", id, "provider", proposal.ProviderPubkey, "subscription", subscription.ID)

	if !enableAutopay {
		return subscription, nil
	}
	if err := l.enableAutopay(ctx, proposal, limitSats); err != nil {
		return subscription, fmt.Errorf("subscription created but auto-pay setup failed: %w", err)
	}
	return subscription, nil
}

func (l *Lifecycle) enableAutopay(ctx context.Context, proposal *models.SubscriptionProposal, limitSats *uint64) error {
	maxAmount := proposal.AmountSats
	if limitSats != nil {
		maxAmount = *limitSats
	}
	name := strings.TrimSpace(proposal.Description)
	if name == "" {
		name = proposal.ProviderPubkey
	}
	rule := &models.AutoPayRule{
		Name:          "Subscription: " + name,
		PeerPubkey:    proposal.ProviderPubkey,
		AllowedPeers:  models.NewStringSet(proposal.ProviderPubkey),
		MaxAmountSats: maxAmount,
		IsEnabled:     true,
	}
	if _, err := l.autopay.SaveRule(ctx, rule); err != nil {
		return err
	}
	if limitSats == nil {
		return nil
	}
	_, err := l.autopay.SetPeerLimit(ctx, proposal.ProviderPubkey, *limitSats, proposal.Frequency.Period())
	return err
}

// Decline marks a pending proposal declined. Nothing is sent to the provider.
func (l *Lifecycle) Decline(ctx context.Context, id string) error {
	proposal, err := l.store.GetProposal(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get proposal: %w", err)
	}
	if proposal.Status != models.ProposalPending {
		return fmt.Errorf("%w: proposal %s is %s", models.ErrInvalidTransition, id, proposal.Status)
	}
	proposal.Status = models.ProposalDeclined
	if err := l.store.SaveProposal(ctx, proposal); err != nil {
		return fmt.Errorf("failed to decline proposal: %w", err)
	}
	l.metrics.RecordTransition(metricKind, "declined")
	return nil
}

// CancelSent deletes a proposal owner published. The local tracking entry is
// only removed after the remote delete succeeded.
func (l *Lifecycle) CancelSent(ctx context.Context, owner, id string) error {
	if owner == "" {
		return models.ErrNoIdentity
	}
	sent, err := l.store.GetSentProposal(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get sent proposal: %w", err)
	}
	key := models.RecordKey{
		Kind:            models.RecordSubscriptionProposal,
		OwnerPubkey:     owner,
		RecipientPubkey: sent.RecipientPubkey,
		ID:              id,
	}
	if err := l.directory.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete published proposal: %w", err)
	}
	if err := l.store.DeleteSentProposal(ctx, id); err != nil {
		return fmt.Errorf("failed to delete sent proposal: %w", err)
	}
	l.metrics.RecordTransition(metricKind, "cancelled")
	l.logger.Info("Sent proposal cancelled", "id", id, "recipient", sent.RecipientPubkey)
	return nil
}

// CleanupOrphaned deletes proposals in owner's storage that are no longer
// tracked locally, for every recipient found locally or in the directory.
// It returns the number deleted together with the
// aggregated per-recipient failures.
func (l *Lifecycle) CleanupOrphaned(ctx context.Context, owner string) (int, error) {
	if owner == "" {
		return 0, models.ErrNoIdentity
	}
	sent, err := l.store.ListSentProposals(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sent proposals: %w", err)
	}
	contacts, err := l.store.ListContacts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list contacts: %w", err)
	}

	tracked := make(map[string]map[string]struct{})
	var recipients []string
	addRecipient := func(pk string) {
		if _, ok := tracked[pk]; !ok {
			tracked[pk] = make(map[string]struct{})
			recipients = append(recipients, pk)
		}
	}
	for _, s := range sent {
		addRecipient(s.RecipientPubkey)
		tracked[s.RecipientPubkey][s.ID] = struct{}{}
	}
	for _, c := range contacts {
		addRecipient(c.Pubkey)
	}

	var (
		deleted int
		errs    error
	)
	// recipients whose tracking was lost entirely are only visible remotely
	remote, err := l.directory.ListRecipients(ctx, models.RecordSubscriptionProposal, owner)
	if err != nil {
		l.logger.Warn("Failed to list proposal recipients", "owner", owner, "error", err)
		l.metrics.RecordPeerFailure(metricKind, "cleanup")
		errs = multierr.Append(errs, fmt.Errorf("list recipients: %w", err))
	}
	for _, pk := range remote {
		addRecipient(pk)
	}
	for _, recipient := range recipients {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		n, err := directory.DeleteUntracked(ctx, l.directory, models.RecordSubscriptionProposal, owner, recipient, tracked[recipient])
		deleted += n
		if err != nil {
			l.logger.Warn("Failed to clean up proposals", "recipient", recipient, "error", err)
			l.metrics.RecordPeerFailure(metricKind, "cleanup")
			errs = multierr.Append(errs, fmt.Errorf("recipient %s: %w", recipient, err))
		}
	}
	l.metrics.RecordOrphansDeleted(metricKind, deleted)
	if deleted > 0 {
		l.logger.Info("Deleted orphaned proposals", "count", deleted)
	}
	return deleted, errs
}

func (l *Lifecycle) ListProposals(ctx context.Context, status models.ProposalStatus) ([]*models.SubscriptionProposal, error) {
	proposals, err := l.store.ListProposals(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	return proposals, nil
}

func (l *Lifecycle) ListSentProposals(ctx context.Context) ([]*models.SentProposal, error) {
	sent, err := l.store.ListSentProposals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sent proposals: %w", err)
	}
	return sent, nil
}
