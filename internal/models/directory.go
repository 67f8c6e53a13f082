package models

import (
	"context"
	"path"
)

// PaykitRoot is the directory prefix every paykit record lives under.
const PaykitRoot = "/pub/paykit.app/v0"

// RecordKind selects the directory subtree of a record.
type RecordKind string

const (
	RecordPaymentRequest       RecordKind = "requests"
	RecordSubscriptionProposal RecordKind = "subscriptions/proposals"
)

// RecordKey addresses a record in OwnerPubkey's storage that is meant for
// RecipientPubkey.
type RecordKey struct {
	Kind            RecordKind
	OwnerPubkey     string
	RecipientPubkey string
	ID              string
}

// KindDir is the listing directory holding one subdirectory per recipient.
func KindDir(kind RecordKind) string {
	return path.Join(PaykitRoot, string(kind)) + "/"
}

// Dir is the listing directory of records of this kind for the recipient.
func (k RecordKey) Dir() string {
	return path.Join(PaykitRoot, string(k.Kind), k.RecipientPubkey) + "/"
}

// Path is the record path inside the owner's storage.
func (k RecordKey) Path() string {
	return path.Join(PaykitRoot, string(k.Kind), k.RecipientPubkey, k.ID)
}

// Record is an opaque JSON document stored in a directory.
type Record struct {
	Key  RecordKey
	Data []byte
}

// NoiseEndpoint is the published endpoint used for encrypted payment sessions.
type NoiseEndpoint struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	NoisePubkey string `json:"server_noise_pubkey"`
}

// DirectoryStore is the eventually consistent homeserver each identity uses
// to exchange records with peers. No transactional guarantees.
type DirectoryStore interface {
	// Publish writes the record into its owner's storage.
	Publish(ctx context.Context, record *Record) error
	// Fetch returns nil, nil if the record does not exist.
	Fetch(ctx context.Context, key RecordKey) (*Record, error)
	// ListIDs lists record IDs of kind in owner's storage addressed to recipient.
	ListIDs(ctx context.Context, kind RecordKind, ownerPubkey, recipientPubkey string) ([]string, error)
	// ListRecipients lists the recipients that have records of kind in owner's storage.
	ListRecipients(ctx context.Context, kind RecordKind, ownerPubkey string) ([]string, error)
	// Delete removes the record. Deleting a missing record succeeds.
	Delete(ctx context.Context, key RecordKey) error
	// DeleteBatch deletes ids and returns how many were deleted.
	DeleteBatch(ctx context.Context, kind RecordKind, ownerPubkey, recipientPubkey string, ids []string) (int, error)
	// FetchNoiseEndpoint returns nil, nil if owner has not published an endpoint.
	FetchNoiseEndpoint(ctx context.Context, ownerPubkey string) (*NoiseEndpoint, error)
	// PublishNoiseEndpoint replaces the endpoint advertised in owner's storage.
	PublishNoiseEndpoint(ctx context.Context, ownerPubkey string, endpoint *NoiseEndpoint) error
}
