// Package requests manages point-to-point payment requests exchanged
// through the peers' directories.
package requests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/paykit-wallet/paykitd/internal/directory"
	"github.com/paykit-wallet/paykitd/internal/metrics"
	"github.com/paykit-wallet/paykitd/internal/models"
	"github.com/paykit-wallet/paykitd/pkg/logger"
)

const metricKind = "payment_request"

type Storage interface {
	models.PaymentRequestStorage
	models.ContactStorage
	models.KeyStorage
}

type Lifecycle struct {
	logger    *logger.Logger
	store     Storage
	directory models.DirectoryStore
	metrics   *metrics.Recorder
	now       func() time.Time
	// expiryDays applies when Send is called without an expiry. Zero never expires.
	expiryDays int
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

func WithDefaultExpiryDays(days int) Option {
	return func(l *Lifecycle) {
		l.expiryDays = days
	}
}

func NewLifecycle(store Storage, dir models.DirectoryStore, logger *logger.Logger, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		logger:    logger.With("component", "requests"),
		store:     store,
		directory: dir,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Discover polls every contact for requests addressed to owner. When nothing
// new is found the result carries a diagnostic explaining why.
func (l *Lifecycle) Discover(ctx context.Context, owner string) (*models.RequestDiscovery, error) {
	if owner == "" {
		return nil, models.ErrNoIdentity
	}
	contacts, err := l.store.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	result := &models.RequestDiscovery{}
	for _, contact := range contacts {
		if err := ctx.Err(); err != nil {
			result.Failures = multierr.Append(result.Failures, err)
			break
		}
		result.PeersChecked++
		imported, err := l.discoverFrom(ctx, owner, contact.Pubkey)
		result.Imported = append(result.Imported, imported...)
		if err != nil {
			l.logger.Warn("Failed to discover payment requests", "peer", contact.Pubkey, "error", err)
			l.metrics.RecordPeerFailure(metricKind, "discover")
			result.Failures = multierr.Append(result.Failures, fmt.Errorf("peer %s: %w", contact.Pubkey, err))
		}
	}
	l.metrics.RecordDiscovered(metricKind, len(result.Imported))

	if len(result.Imported) > 0 {
		result.Message = fmt.Sprintf("Found %d new payment request(s)", len(result.Imported))
		return result, nil
	}
	if err := l.diagnose(ctx, owner, result); err != nil {
		return nil, err
	}
	l.logger.Debug("No new payment requests", "peers", result.PeersChecked, "diagnostic", result.Diagnostic)
	return result, nil
}

func (l *Lifecycle) discoverFrom(ctx context.Context, owner, requester string) ([]*models.PaymentRequest, error) {
	ids, err := l.directory.ListIDs(ctx, models.RecordPaymentRequest, requester, owner)
	if err != nil {
		return nil, err
	}
	var (
		imported []*models.PaymentRequest
		errs     error
	)
	for _, id := range ids {
		_, err := l.store.GetPaymentRequest(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, models.ErrNotFound) {
			return imported, err
		}
		key := models.RecordKey{
			Kind:            models.RecordPaymentRequest,
			OwnerPubkey:     requester,
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
		req, err := decodeRequest(record.Data, key)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := l.store.SavePaymentRequest(ctx, req); err != nil {
			return imported, fmt.Errorf("failed to save payment request: %w", err)
		}
		imported = append(imported, req)
	}
	return imported, errs
}

// diagnose compares the local Noise key with the endpoint owner published.
func (l *Lifecycle) diagnose(ctx context.Context, owner string, result *models.RequestDiscovery) error {
	localKey, err := l.store.GetKey(ctx, models.KeyNoisePublicKey)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to read local noise key: %w", err)
	}
	if localKey == "" {
		result.Diagnostic = models.DiagnosticNoLocalKey
		result.Message = "No local Noise key found. Reconnect the wallet to restore it."
		return nil
	}

	endpoint, err := l.directory.FetchNoiseEndpoint(ctx, owner)
	if err != nil {
		l.logger.Warn("Failed to fetch published noise endpoint", "owner", owner, "error", err)
		result.Failures = multierr.Append(result.Failures, fmt.Errorf("noise endpoint: %w", err))
		result.Message = "Could not check the published Noise endpoint."
		return nil
	}
	if endpoint == nil {
		result.Diagnostic = models.DiagnosticKeyMismatch
		result.Message = "No Noise endpoint is published. Peers cannot reach this wallet."
		return nil
	} else if endpoint.NoisePubkey != localKey {
		result.Diagnostic = models.DiagnosticKeyMismatch
		result.Message = "The published Noise key does not match the local key. Republish the endpoint."
		return nil
	}

	result.Diagnostic = models.DiagnosticNothingPending
	result.Message = "No pending payment requests."
	return nil
}

// PublishEndpoint advertises host:port with the local Noise key so peers
// can reach owner. It is the fix for a key mismatch diagnostic.
func (l *Lifecycle) PublishEndpoint(ctx context.Context, owner, host string, port int) (*models.NoiseEndpoint, error) {
	if owner == "" {
		return nil, models.ErrNoIdentity
	}
	if host == "" || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: noise endpoint %s:%d", models.ErrInvalidArgument, host, port)
	}
	localKey, err := l.store.GetKey(ctx, models.KeyNoisePublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read local noise key: %w", err)
	}
	endpoint := &models.NoiseEndpoint{Host: host, Port: port, NoisePubkey: localKey}
	if err := l.directory.PublishNoiseEndpoint(ctx, owner, endpoint); err != nil {
		return nil, fmt.Errorf("failed to publish noise endpoint: %w", err)
	}
	l.logger.Info("Published noise endpoint", "host", host, "port", port)
	return endpoint, nil
}

// Send publishes a request asking recipient to pay owner. An expiresInDays
// of zero falls back to the configured default. The request is tracked
// locally as outgoing.
func (l *Lifecycle) Send(ctx context.Context, owner, recipient string, amountSats uint64, methodID, description string, expiresInDays int) (*models.PaymentRequest, error) {
	if owner == "" {
		return nil, models.ErrNoIdentity
	}
	if amountSats == 0 {
		return nil, models.ErrInvalidAmount
	}
	if expiresInDays < 0 {
		return nil, fmt.Errorf("%w: negative expiry", models.ErrInvalidArgument)
	}
	if methodID == "" {
		methodID = models.MethodLightning
	}
	if expiresInDays == 0 {
		expiresInDays = l.expiryDays
	}

	created := l.now().UTC()
	req := &models.PaymentRequest{
		ID:          uuid.NewString(),
		FromPubkey:  owner,
		ToPubkey:    recipient,
		AmountSats:  amountSats,
		MethodID:    methodID,
		Description: description,
		CreatedAt:   created,
		Status:      models.RequestPending,
		Direction:   models.DirectionOutgoing,
	}
	if expiresInDays > 0 {
		exp := created.AddDate(0, 0, expiresInDays)
		req.ExpiresAt = &exp
	}

	data, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}
	record := &models.Record{
		Key: models.RecordKey{
			Kind:            models.RecordPaymentRequest,
			OwnerPubkey:     owner,
			RecipientPubkey: recipient,
			ID:              req.ID,
		},
		Data: data,
	}
	if err := l.directory.Publish(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to publish payment request: %w", err)
	}

	sent := &models.SentPaymentRequest{
		ID:              req.ID,
		RecipientPubkey: recipient,
		AmountSats:      amountSats,
		MethodID:        methodID,
		Description:     description,
		CreatedAt:       created,
	}
	if err := l.store.SaveSentPaymentRequest(ctx, sent); err != nil {
		return nil, fmt.Errorf("failed to track sent payment request: %w", err)
	}
	if err := l.store.SavePaymentRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to save payment request: %w", err)
	}
	l.metrics.RecordTransition(metricKind, "sent")
	l.logger.Info("Payment request sent", "id", req.ID, "recipient", recipient, "amount", amountSats)
	return req, nil
}

// Accept marks an incoming pending request accepted. Expired requests are refused.
func (l *Lifecycle) Accept(ctx context.Context, id string) (*models.PaymentRequest, error) {
	req, err := l.store.GetPaymentRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	if req.Direction != models.DirectionIncoming {
		return nil, fmt.Errorf("%w: request %s is outgoing", models.ErrInvalidTransition, id)
	}
	switch req.EffectiveStatus(l.now()) {
	case models.RequestPending:
	case models.RequestExpired:
		return nil, models.ErrRequestExpired
	default:
		return nil, fmt.Errorf("%w: request %s is %s", models.ErrInvalidTransition, id, req.Status)
	}
	req.Status = models.RequestAccepted
	if err := l.store.SavePaymentRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to accept payment request: %w", err)
	}
	l.metrics.RecordTransition(metricKind, "accepted")
	l.logger.Info("Payment request accepted", "id", id, "from", req.FromPubkey, "amount", req.AmountSats)
	return req, nil
}

// Decline marks a stored-pending request declined, expired or not. Local only.
func (l *Lifecycle) Decline(ctx context.Context, id string) error {
	req, err := l.store.GetPaymentRequest(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get payment request: %w", err)
	}
	if req.Status != models.RequestPending {
		return fmt.Errorf("%w: request %s is %s", models.ErrInvalidTransition, id, req.Status)
	}
	req.Status = models.RequestDeclined
	if err := l.store.SavePaymentRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to decline payment request: %w", err)
	}
	l.metrics.RecordTransition(metricKind, "declined")
	return nil
}

// CancelSent deletes a request owner published. Local tracking is kept
// when the remote delete fails.
func (l *Lifecycle) CancelSent(ctx context.Context, owner, id string) error {
	if owner == "" {
		return models.ErrNoIdentity
	}
	sent, err := l.store.GetSentPaymentRequest(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get sent payment request: %w", err)
	}
	key := models.RecordKey{
		Kind:            models.RecordPaymentRequest,
		OwnerPubkey:     owner,
		RecipientPubkey: sent.RecipientPubkey,
		ID:              id,
	}
	if err := l.directory.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete published payment request: %w", err)
	}
	if err := l.store.DeleteSentPaymentRequest(ctx, id); err != nil {
		return fmt.Errorf("failed to delete sent payment request: %w", err)
	}
	if err := l.store.DeletePaymentRequest(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to delete payment request: %w", err)
	}
	l.metrics.RecordTransition(metricKind, "cancelled")
	l.logger.Info("Sent payment request cancelled", "id", id, "recipient", sent.RecipientPubkey)
	return nil
}

// CleanupOrphaned deletes requests in owner's storage that are no longer
// tracked locally, including those for recipients only the directory knows. Per-recipient failures are aggregated into the error.
func (l *Lifecycle) CleanupOrphaned(ctx context.Context, owner string) (int, error) {
	if owner == "" {
		return 0, models.ErrNoIdentity
	}
	sent, err := l.store.ListSentPaymentRequests(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sent payment requests: %w", err)
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
	remote, err := l.directory.ListRecipients(ctx, models.RecordPaymentRequest, owner)
	if err != nil {
		l.logger.Warn("Failed to list payment request recipients", "owner", owner, "error", err)
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
		n, err := directory.DeleteUntracked(ctx, l.directory, models.RecordPaymentRequest, owner, recipient, tracked[recipient])
		deleted += n
		if err != nil {
			l.logger.Warn("Failed to clean up payment requests", "recipient", recipient, "error", err)
			l.metrics.RecordPeerFailure(metricKind, "cleanup")
			errs = multierr.Append(errs, fmt.Errorf("recipient %s: %w", recipient, err))
		}
	}
	l.metrics.RecordOrphansDeleted(metricKind, deleted)
	if deleted > 0 {
		l.logger.Info("Deleted orphaned payment requests", "count", deleted)
	}
	return deleted, errs
}

// List returns requests in direction, or all when direction is empty, with
// their status as of now.
func (l *Lifecycle) List(ctx context.Context, direction models.Direction) ([]*models.RequestView, error) {
	reqs, err := l.store.ListPaymentRequests(ctx, direction)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment requests: %w", err)
	}
	now := l.now()
	views := make([]*models.RequestView, 0, len(reqs))
	for _, r := range reqs {
		views = append(views, &models.RequestView{PaymentRequest: r, EffectiveStatus: r.EffectiveStatus(now)})
	}
	return views, nil
}

func (l *Lifecycle) Get(ctx context.Context, id string) (*models.RequestView, error) {
	req, err := l.store.GetPaymentRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	return &models.RequestView{PaymentRequest: req, EffectiveStatus: req.EffectiveStatus(l.now())}, nil
}

// Delete removes a request from local storage only. The directory copy is
// untouched, so an incoming request the requester still publishes is
// imported again by the next Discover.
func (l *Lifecycle) Delete(ctx context.Context, id string) error {
	if err := l.store.DeletePaymentRequest(ctx, id); err != nil {
		return fmt.Errorf("failed to delete payment request: %w", err)
	}
	return nil
}
