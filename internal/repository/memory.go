package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/paykit-wallet/paykitd/internal/models"
)

// MemoryDB is a process-local models.Repository. It backs development mode
// and tests; nothing survives a restart.
type MemoryDB struct {
	mu sync.RWMutex

	settings      *models.AutoPaySettings
	peerLimits    map[string]models.PeerSpendingLimit
	rules         map[string]models.AutoPayRule
	proposals     map[string]models.SubscriptionProposal
	sentProposals map[string]models.SentProposal
	subscriptions map[string]models.Subscription
	requests      map[string]models.PaymentRequest
	sentRequests  map[string]models.SentPaymentRequest
	contacts      map[string]models.Contact
	keys          map[string]string
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		peerLimits:    make(map[string]models.PeerSpendingLimit),
		rules:         make(map[string]models.AutoPayRule),
		proposals:     make(map[string]models.SubscriptionProposal),
		sentProposals: make(map[string]models.SentProposal),
		subscriptions: make(map[string]models.Subscription),
		requests:      make(map[string]models.PaymentRequest),
		sentRequests:  make(map[string]models.SentPaymentRequest),
		contacts:      make(map[string]models.Contact),
		keys:          make(map[string]string),
	}
}

func (m *MemoryDB) Close() error {
	return nil
}

func cloneRule(r models.AutoPayRule) *models.AutoPayRule {
	r.AllowedMethods = append(models.StringSet{}, r.AllowedMethods...)
	r.AllowedPeers = append(models.StringSet{}, r.AllowedPeers...)
	return &r
}

func clonePtrTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func sortRules(rules []*models.AutoPayRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (m *MemoryDB) GetSettings(ctx context.Context) (*models.AutoPaySettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return nil, models.ErrNotFound
	}
	s := *m.settings
	return &s, nil
}

func (m *MemoryDB) SaveSettings(ctx context.Context, settings *models.AutoPaySettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *settings
	s.ID = models.SettingsID
	m.settings = &s
	return nil
}

func (m *MemoryDB) GetPeerLimit(ctx context.Context, peerPubkey string) (*models.PeerSpendingLimit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit, ok := m.peerLimits[peerPubkey]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &limit, nil
}

func (m *MemoryDB) SavePeerLimit(ctx context.Context, limit *models.PeerSpendingLimit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peerLimits[limit.PeerPubkey] = *limit
	return nil
}

func (m *MemoryDB) DeletePeerLimit(ctx context.Context, peerPubkey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peerLimits, peerPubkey)
	return nil
}

func (m *MemoryDB) ListPeerLimits(ctx context.Context) ([]*models.PeerSpendingLimit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limits := make([]*models.PeerSpendingLimit, 0, len(m.peerLimits))
	for _, l := range m.peerLimits {
		l := l
		limits = append(limits, &l)
	}
	sort.Slice(limits, func(i, j int) bool { return limits[i].PeerPubkey < limits[j].PeerPubkey })
	return limits, nil
}

func (m *MemoryDB) GetRule(ctx context.Context, id string) (*models.AutoPayRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rule, ok := m.rules[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneRule(rule), nil
}

func (m *MemoryDB) SaveRule(ctx context.Context, rule *models.AutoPayRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = *cloneRule(*rule)
	return nil
}

func (m *MemoryDB) DeleteRule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, id)
	return nil
}

func (m *MemoryDB) ListRules(ctx context.Context) ([]*models.AutoPayRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rules := make([]*models.AutoPayRule, 0, len(m.rules))
	for _, r := range m.rules {
		rules = append(rules, cloneRule(r))
	}
	sortRules(rules)
	return rules, nil
}

func (m *MemoryDB) GetMatchingRules(ctx context.Context, peerPubkey, methodID string, amount uint64) ([]*models.AutoPayRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rules []*models.AutoPayRule
	for _, r := range m.rules {
		if !r.IsEnabled || amount > r.MaxAmountSats {
			continue
		}
		if r.PeerPubkey != "" && r.PeerPubkey != peerPubkey {
			continue
		}
		rules = append(rules, cloneRule(r))
	}
	sortRules(rules)
	return rules, nil
}

func (m *MemoryDB) GetProposal(ctx context.Context, id string) (*models.SubscriptionProposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.proposals[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &p, nil
}

func (m *MemoryDB) SaveProposal(ctx context.Context, proposal *models.SubscriptionProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals[proposal.ID] = *proposal
	return nil
}

func (m *MemoryDB) DeleteProposal(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.proposals, id)
	return nil
}

func (m *MemoryDB) ListProposals(ctx context.Context, status models.ProposalStatus) ([]*models.SubscriptionProposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var proposals []*models.SubscriptionProposal
	for _, p := range m.proposals {
		if status != "" && p.Status != status {
			continue
		}
		p := p
		proposals = append(proposals, &p)
	}
	sort.Slice(proposals, func(i, j int) bool {
		if !proposals[i].CreatedAt.Equal(proposals[j].CreatedAt) {
			return proposals[i].CreatedAt.Before(proposals[j].CreatedAt)
		}
		return proposals[i].ID < proposals[j].ID
	})
	return proposals, nil
}

func (m *MemoryDB) GetSentProposal(ctx context.Context, id string) (*models.SentProposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sentProposals[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

func (m *MemoryDB) SaveSentProposal(ctx context.Context, sent *models.SentProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentProposals[sent.ID] = *sent
	return nil
}

func (m *MemoryDB) DeleteSentProposal(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sentProposals, id)
	return nil
}

func (m *MemoryDB) ListSentProposals(ctx context.Context) ([]*models.SentProposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sent := make([]*models.SentProposal, 0, len(m.sentProposals))
	for _, s := range m.sentProposals {
		s := s
		sent = append(sent, &s)
	}
	sort.Slice(sent, func(i, j int) bool {
		if !sent[i].CreatedAt.Equal(sent[j].CreatedAt) {
			return sent[i].CreatedAt.Before(sent[j].CreatedAt)
		}
		return sent[i].ID < sent[j].ID
	})
	return sent, nil
}

func (m *MemoryDB) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subscriptions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	s.LastPaymentAt = clonePtrTime(s.LastPaymentAt)
	return &s, nil
}

func (m *MemoryDB) SaveSubscription(ctx context.Context, subscription *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *subscription
	s.LastPaymentAt = clonePtrTime(s.LastPaymentAt)
	m.subscriptions[s.ID] = s
	return nil
}

func (m *MemoryDB) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, id)
	return nil
}

func (m *MemoryDB) ListSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	subscriptions := make([]*models.Subscription, 0, len(m.subscriptions))
	for _, s := range m.subscriptions {
		s := s
		s.LastPaymentAt = clonePtrTime(s.LastPaymentAt)
		subscriptions = append(subscriptions, &s)
	}
	sort.Slice(subscriptions, func(i, j int) bool {
		if !subscriptions[i].CreatedAt.Equal(subscriptions[j].CreatedAt) {
			return subscriptions[i].CreatedAt.Before(subscriptions[j].CreatedAt)
		}
		return subscriptions[i].ID < subscriptions[j].ID
	})
	return subscriptions, nil
}

func (m *MemoryDB) GetPaymentRequest(ctx context.Context, id string) (*models.PaymentRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	r.ExpiresAt = clonePtrTime(r.ExpiresAt)
	return &r, nil
}

func (m *MemoryDB) SavePaymentRequest(ctx context.Context, request *models.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *request
	r.ExpiresAt = clonePtrTime(r.ExpiresAt)
	m.requests[r.ID] = r
	return nil
}

func (m *MemoryDB) DeletePaymentRequest(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, id)
	return nil
}

func (m *MemoryDB) ListPaymentRequests(ctx context.Context, direction models.Direction) ([]*models.PaymentRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var requests []*models.PaymentRequest
	for _, r := range m.requests {
		if direction != "" && r.Direction != direction {
			continue
		}
		r := r
		r.ExpiresAt = clonePtrTime(r.ExpiresAt)
		requests = append(requests, &r)
	}
	sort.Slice(requests, func(i, j int) bool {
		if !requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].CreatedAt.Before(requests[j].CreatedAt)
		}
		return requests[i].ID < requests[j].ID
	})
	return requests, nil
}

func (m *MemoryDB) GetSentPaymentRequest(ctx context.Context, id string) (*models.SentPaymentRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sentRequests[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

func (m *MemoryDB) SaveSentPaymentRequest(ctx context.Context, sent *models.SentPaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentRequests[sent.ID] = *sent
	return nil
}

func (m *MemoryDB) DeleteSentPaymentRequest(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sentRequests, id)
	return nil
}

func (m *MemoryDB) ListSentPaymentRequests(ctx context.Context) ([]*models.SentPaymentRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sent := make([]*models.SentPaymentRequest, 0, len(m.sentRequests))
	for _, s := range m.sentRequests {
		s := s
		sent = append(sent, &s)
	}
	sort.Slice(sent, func(i, j int) bool {
		if !sent[i].CreatedAt.Equal(sent[j].CreatedAt) {
			return sent[i].CreatedAt.Before(sent[j].CreatedAt)
		}
		return sent[i].ID < sent[j].ID
	})
	return sent, nil
}

func (m *MemoryDB) SaveContact(ctx context.Context, contact *models.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[contact.Pubkey] = *contact
	return nil
}

func (m *MemoryDB) DeleteContact(ctx context.Context, pubkey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contacts, pubkey)
	delete(m.peerLimits, pubkey)
	return nil
}

func (m *MemoryDB) ListContacts(ctx context.Context) ([]*models.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	contacts := make([]*models.Contact, 0, len(m.contacts))
	for _, c := range m.contacts {
		c := c
		contacts = append(contacts, &c)
	}
	sort.Slice(contacts, func(i, j int) bool {
		if !contacts[i].CreatedAt.Equal(contacts[j].CreatedAt) {
			return contacts[i].CreatedAt.Before(contacts[j].CreatedAt)
		}
		return contacts[i].Pubkey < contacts[j].Pubkey
	})
	return contacts, nil
}

func (m *MemoryDB) GetKey(ctx context.Context, name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.keys[name]
	if !ok {
		return "", models.ErrNotFound
	}
	return v, nil
}

func (m *MemoryDB) SaveKey(ctx context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[name] = value
	return nil
}
