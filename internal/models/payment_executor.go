package models

import (
	"context"
	"fmt"
)

const (
	MethodLightning = "lightning"
	MethodOnchain   = "onchain"
)

// PaymentResult is returned by a successful Lightning payment.
type PaymentResult struct {
	PaymentHash string `json:"payment_hash"`
	Preimage    string `json:"preimage"`
	AmountSats  uint64 `json:"amount_sats"`
	FeeSats     uint64 `json:"fee_sats"`
}

// TxResult is returned by a successful on-chain payment.
type TxResult struct {
	TxID       string `json:"txid"`
	AmountSats uint64 `json:"amount_sats"`
	FeeSats    uint64 `json:"fee_sats"`
}

// PaymentErrorKind classifies executor failures.
type PaymentErrorKind string

const (
	PaymentErrInvalidRecipient  PaymentErrorKind = "invalid_recipient"
	PaymentErrInsufficientFunds PaymentErrorKind = "insufficient_funds"
	PaymentErrRouteNotFound     PaymentErrorKind = "route_not_found"
	PaymentErrTimeout           PaymentErrorKind = "timeout"
	PaymentErrUnsupportedMethod PaymentErrorKind = "unsupported_method"
	PaymentErrTransport         PaymentErrorKind = "transport"
	PaymentErrUnknown           PaymentErrorKind = "unknown"
)

// PaymentError is the error type of every PaymentExecutor failure.
type PaymentError struct {
	Kind    PaymentErrorKind `json:"kind"`
	Message string           `json:"message"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment failed (%s): %s", e.Kind, e.Message)
}

// PaymentExecutor moves funds. The auto-pay core only decides whether to call it.
type PaymentExecutor interface {
	PayLightning(ctx context.Context, invoice string, amountSats *uint64) (*PaymentResult, error)
	PayOnchain(ctx context.Context, address string, amountSats uint64, feeRate *float64) (*TxResult, error)
}
