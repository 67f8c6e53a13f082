package models

// Diagnostic explains an empty payment request discovery.
type Diagnostic string

const (
	DiagnosticNone           Diagnostic = ""
	DiagnosticNoLocalKey     Diagnostic = "no_local_key"
	DiagnosticKeyMismatch    Diagnostic = "key_mismatch"
	DiagnosticNothingPending Diagnostic = "nothing_pending"
)

// ProposalDiscovery is the outcome of polling contacts for proposals.
type ProposalDiscovery struct {
	// Pending holds every locally pending proposal after the merge.
	Pending []*SubscriptionProposal `json:"pending"`
	// NewCount is how many proposals were imported by this run.
	NewCount int `json:"new_count"`
	// PeersChecked is how many contacts were polled.
	PeersChecked int `json:"peers_checked"`
	// Failures aggregates per-peer errors that were skipped.
	Failures error `json:"-"`
}

// RequestDiscovery is the outcome of polling contacts for payment requests.
type RequestDiscovery struct {
	Imported     []*PaymentRequest `json:"imported"`
	PeersChecked int               `json:"peers_checked"`
	Diagnostic   Diagnostic        `json:"diagnostic,omitempty"`
	// Message is a user-facing summary of the run.
	Message  string `json:"message"`
	Failures error  `json:"-"`
}

// PaymentIntent is a payment the caller wants to make autonomously.
type PaymentIntent struct {
	PeerPubkey string `json:"peer_pubkey"`
	AmountSats uint64 `json:"amount_sats"`
	// MethodID defaults to the settings' default method when empty.
	MethodID string `json:"method_id"`
	// Invoice is required for lightning.
	Invoice string `json:"invoice,omitempty"`
	// Address is required for onchain.
	Address string   `json:"address,omitempty"`
	FeeRate *float64 `json:"fee_rate,omitempty"`
}

// PaymentOutcome reports what happened to a PaymentIntent.
type PaymentOutcome struct {
	Decision EvaluationResult `json:"decision"`
	// Executed is true when the executor was called and succeeded.
	Executed  bool           `json:"executed"`
	Lightning *PaymentResult `json:"lightning,omitempty"`
	Onchain   *TxResult      `json:"onchain,omitempty"`
}
