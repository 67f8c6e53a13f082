package models

import "time"

// RequestStatus is the stored status of a payment request. RequestExpired is
// only ever derived at read time.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestAccepted RequestStatus = "ACCEPTED"
	RequestDeclined RequestStatus = "DECLINED"
	RequestExpired  RequestStatus = "EXPIRED"
)

// Direction tells whether a request was received or sent.
type Direction string

const (
	DirectionIncoming Direction = "INCOMING"
	DirectionOutgoing Direction = "OUTGOING"
)

// PaymentRequest is a point-to-point request for payment.
type PaymentRequest struct {
	// ID is the unique identifier shared by both parties.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// FromPubkey is the requester (the party to be paid).
	FromPubkey string `json:"from_pubkey" gorm:"column:from_pubkey;index"`
	// ToPubkey is the party asked to pay.
	ToPubkey string `json:"to_pubkey" gorm:"column:to_pubkey;index"`
	// AmountSats is the requested amount.
	AmountSats uint64 `json:"amount_sats" gorm:"column:amount_sats"`
	// MethodID is the requested payment method.
	MethodID string `json:"method_id" gorm:"column:method_id"`
	// Description is free text shown to the payer.
	Description string `json:"description" gorm:"column:description"`
	// CreatedAt is when the requester created the request.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	// ExpiresAt is optional; a nil value never expires.
	ExpiresAt *time.Time `json:"expires_at,omitempty" gorm:"column:expires_at"`
	// Status is the stored status.
	Status RequestStatus `json:"status" gorm:"column:status;index"`
	// Direction is INCOMING for discovered requests and OUTGOING for sent ones.
	Direction Direction `json:"direction" gorm:"column:direction;index"`
}

func (PaymentRequest) TableName() string {
	return "payment_requests"
}

// IsExpired reports whether the request is past its expiry at now.
func (r *PaymentRequest) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// EffectiveStatus is the status to display or act on at now. A pending
// request past its expiry reads as RequestExpired without being rewritten.
func (r *PaymentRequest) EffectiveStatus(now time.Time) RequestStatus {
	if r.Status == RequestPending && r.IsExpired(now) {
		return RequestExpired
	}
	return r.Status
}

// SentPaymentRequest tracks a request this wallet published to its own storage.
type SentPaymentRequest struct {
	ID              string    `json:"id" gorm:"column:id;primaryKey"`
	RecipientPubkey string    `json:"recipient_pubkey" gorm:"column:recipient_pubkey;index"`
	AmountSats      uint64    `json:"amount_sats" gorm:"column:amount_sats"`
	MethodID        string    `json:"method_id" gorm:"column:method_id"`
	Description     string    `json:"description" gorm:"column:description"`
	CreatedAt       time.Time `json:"created_at" gorm:"column:created_at"`
}

func (SentPaymentRequest) TableName() string {
	return "sent_payment_requests"
}

// RequestView is a payment request together with its read-time status.
type RequestView struct {
	*PaymentRequest
	EffectiveStatus RequestStatus `json:"effective_status"`
}
