package directory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/paykit-wallet/paykitd/internal/models"
)

// Memory is a shared in-process directory holding every identity's storage.
// Used in development mode and as the homeserver double in tests.
type Memory struct {
	mu      sync.RWMutex
	records map[string]map[string][]byte // owner -> path -> data
	noise   map[string]models.NoiseEndpoint

	// failOwners makes every call touching these owners fail.
	failOwners map[string]error
}

func NewMemory() *Memory {
	return &Memory{
		records:    make(map[string]map[string][]byte),
		noise:      make(map[string]models.NoiseEndpoint),
		failOwners: make(map[string]error),
	}
}

// FailOwner makes calls for owner return err until cleared with a nil err.
func (m *Memory) FailOwner(owner string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failOwners, owner)
		return
	}
	m.failOwners[owner] = err
}

func (m *Memory) failure(owner string) error {
	return m.failOwners[owner]
}

func (m *Memory) Publish(ctx context.Context, record *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(record.Key.OwnerPubkey); err != nil {
		return err
	}
	owner := m.records[record.Key.OwnerPubkey]
	if owner == nil {
		owner = make(map[string][]byte)
		m.records[record.Key.OwnerPubkey] = owner
	}
	owner[record.Key.Path()] = append([]byte(nil), record.Data...)
	return nil
}

func (m *Memory) Fetch(ctx context.Context, key models.RecordKey) (*models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(key.OwnerPubkey); err != nil {
		return nil, err
	}
	data, ok := m.records[key.OwnerPubkey][key.Path()]
	if !ok {
		return nil, nil
	}
	return &models.Record{Key: key, Data: append([]byte(nil), data...)}, nil
}

func (m *Memory) ListIDs(ctx context.Context, kind models.RecordKind, ownerPubkey, recipientPubkey string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(ownerPubkey); err != nil {
		return nil, err
	}
	dir := models.RecordKey{Kind: kind, RecipientPubkey: recipientPubkey}.Dir()
	var ids []string
	for p := range m.records[ownerPubkey] {
		if rest, ok := strings.CutPrefix(p, dir); ok && rest != "" && !strings.Contains(rest, "/") {
			ids = append(ids, rest)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) ListRecipients(ctx context.Context, kind models.RecordKind, ownerPubkey string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(ownerPubkey); err != nil {
		return nil, err
	}
	dir := models.KindDir(kind)
	seen := make(map[string]struct{})
	var recipients []string
	for p := range m.records[ownerPubkey] {
		rest, ok := strings.CutPrefix(p, dir)
		if !ok {
			continue
		}
		recipient, id, ok := strings.Cut(rest, "/")
		if !ok || recipient == "" || id == "" || strings.Contains(id, "/") {
			continue
		}
		if _, dup := seen[recipient]; !dup {
			seen[recipient] = struct{}{}
			recipients = append(recipients, recipient)
		}
	}
	sort.Strings(recipients)
	return recipients, nil
}

func (m *Memory) Delete(ctx context.Context, key models.RecordKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(key.OwnerPubkey); err != nil {
		return err
	}
	delete(m.records[key.OwnerPubkey], key.Path())
	return nil
}

func (m *Memory) DeleteBatch(ctx context.Context, kind models.RecordKind, ownerPubkey, recipientPubkey string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(ownerPubkey); err != nil {
		return 0, err
	}
	deleted := 0
	for _, id := range ids {
		p := models.RecordKey{Kind: kind, RecipientPubkey: recipientPubkey, ID: id}.Path()
		if _, ok := m.records[ownerPubkey][p]; ok {
			delete(m.records[ownerPubkey], p)
			deleted++
		}
	}
	return deleted, nil
}

func (m *Memory) FetchNoiseEndpoint(ctx context.Context, ownerPubkey string) (*models.NoiseEndpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(ownerPubkey); err != nil {
		return nil, err
	}
	endpoint, ok := m.noise[ownerPubkey]
	if !ok {
		return nil, nil
	}
	return &endpoint, nil
}

func (m *Memory) PublishNoiseEndpoint(ctx context.Context, ownerPubkey string, endpoint *models.NoiseEndpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noise[ownerPubkey] = *endpoint
	return nil
}
