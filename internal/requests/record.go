package requests

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paykit-wallet/paykitd/internal/models"
)

type requestRecord struct {
	ID          string `json:"id"`
	FromPubkey  string `json:"from_pubkey"`
	ToPubkey    string `json:"to_pubkey"`
	AmountSats  uint64 `json:"amount_sats"`
	MethodID    string `json:"method_id"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"created_at"`
	ExpiresAt   *int64 `json:"expires_at,omitempty"`
}

func encodeRequest(r *models.PaymentRequest) ([]byte, error) {
	rec := &requestRecord{
		ID:          r.ID,
		FromPubkey:  r.FromPubkey,
		ToPubkey:    r.ToPubkey,
		AmountSats:  r.AmountSats,
		MethodID:    r.MethodID,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.Unix(),
	}
	if r.ExpiresAt != nil {
		exp := r.ExpiresAt.Unix()
		rec.ExpiresAt = &exp
	}
	return json.Marshal(rec)
}

// decodeRequest parses a request found in the requester's storage under key.
func decodeRequest(data []byte, key models.RecordKey) (*models.PaymentRequest, error) {
	var rec requestRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode payment request %s: %w", key.ID, err)
	}
	if rec.ID != "" && rec.ID != key.ID {
		return nil, fmt.Errorf("payment request %s: id mismatch %q", key.ID, rec.ID)
	}
	if rec.FromPubkey != "" && rec.FromPubkey != key.OwnerPubkey {
		return nil, fmt.Errorf("payment request %s: requester mismatch %q", key.ID, rec.FromPubkey)
	}
	if rec.AmountSats == 0 {
		return nil, fmt.Errorf("payment request %s: %w", key.ID, models.ErrInvalidAmount)
	}
	req := &models.PaymentRequest{
		ID:          key.ID,
		FromPubkey:  key.OwnerPubkey,
		ToPubkey:    key.RecipientPubkey,
		AmountSats:  rec.AmountSats,
		MethodID:    rec.MethodID,
		Description: rec.Description,
		CreatedAt:   time.Unix(rec.CreatedAt, 0).UTC(),
		Status:      models.RequestPending,
		Direction:   models.DirectionIncoming,
	}
	if rec.ExpiresAt != nil {
		exp := time.Unix(*rec.ExpiresAt, 0).UTC()
		req.ExpiresAt = &exp
	}
	return req, nil
}
