package proposals

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paykit-wallet/paykitd/internal/models"
)

// proposalRecord is the document a provider publishes for a subscriber.
type proposalRecord struct {
	ID               string           `json:"id"`
	ProviderPubkey   string           `json:"provider_pubkey"`
	SubscriberPubkey string           `json:"subscriber_pubkey"`
	AmountSats       uint64           `json:"amount_sats"`
	Frequency        models.Frequency `json:"frequency"`
	Description      string           `json:"description"`
	CreatedAt        int64            `json:"created_at"`
}

func encodeProposal(p *models.SubscriptionProposal) ([]byte, error) {
	return json.Marshal(&proposalRecord{
		ID:               p.ID,
		ProviderPubkey:   p.ProviderPubkey,
		SubscriberPubkey: p.SubscriberPubkey,
		AmountSats:       p.AmountSats,
		Frequency:        p.Frequency,
		Description:      p.Description,
		CreatedAt:        p.CreatedAt.Unix(),
	})
}

// decodeProposal parses a record fetched from provider's storage. The
// provider and id are taken from where the record was found, not from its body.
func decodeProposal(data []byte, key models.RecordKey) (*models.SubscriptionProposal, error) {
	var rec proposalRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode proposal %s: %w", key.ID, err)
	}
	if rec.ID != "" && rec.ID != key.ID {
		return nil, fmt.Errorf("proposal %s: id mismatch %q", key.ID, rec.ID)
	}
	if rec.ProviderPubkey != "" && rec.ProviderPubkey != key.OwnerPubkey {
		return nil, fmt.Errorf("proposal %s: provider mismatch %q", key.ID, rec.ProviderPubkey)
	}
	if rec.AmountSats == 0 {
		return nil, fmt.Errorf("proposal %s: %w", key.ID, models.ErrInvalidAmount)
	}
	if !rec.Frequency.Valid() {
		return nil, fmt.Errorf("proposal %s: unknown frequency %q", key.ID, rec.Frequency)
	}
	return &models.SubscriptionProposal{
		ID:               key.ID,
		ProviderPubkey:   key.OwnerPubkey,
		SubscriberPubkey: key.RecipientPubkey,
		AmountSats:       rec.AmountSats,
		Frequency:        rec.Frequency,
		Description:      rec.Description,
		CreatedAt:        time.Unix(rec.CreatedAt, 0).UTC(),
		Status:           models.ProposalPending,
	}, nil
}
