// Package payment executes payments through the wallet node's payment service.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paykit-wallet/paykitd/internal/models"
	"github.com/paykit-wallet/paykitd/pkg/logger"
)

const (
	lightningPath = "/v1/pay/lightning"
	onchainPath   = "/v1/pay/onchain"
)

// Client is a models.PaymentExecutor backed by the payment service REST API.
type Client struct {
	logger  *logger.Logger
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration, logger *logger.Logger) *Client {
	return &Client{
		logger:  logger.With("component", "payment"),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type lightningRequest struct {
	Invoice    string  `json:"invoice"`
	AmountSats *uint64 `json:"amount_sats,omitempty"`
}

type onchainRequest struct {
	Address    string   `json:"address"`
	AmountSats uint64   `json:"amount_sats"`
	FeeRate    *float64 `json:"fee_rate,omitempty"`
}

func (c *Client) PayLightning(ctx context.Context, invoice string, amountSats *uint64) (*models.PaymentResult, error) {
	var result models.PaymentResult
	if err := c.post(ctx, lightningPath, &lightningRequest{Invoice: invoice, AmountSats: amountSats}, &result); err != nil {
		return nil, err
	}
	c.logger.Debug("Lightning payment settled", "hash", result.PaymentHash, "fee", result.FeeSats)
	return &result, nil
}

func (c *Client) PayOnchain(ctx context.Context, address string, amountSats uint64, feeRate *float64) (*models.TxResult, error) {
	var result models.TxResult
	if err := c.post(ctx, onchainPath, &onchainRequest{Address: address, AmountSats: amountSats, FeeRate: feeRate}, &result); err != nil {
		return nil, err
	}
	c.logger.Debug("Onchain payment broadcast", "txid", result.TxID, "fee", result.FeeSats)
	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &models.PaymentError{Kind: models.PaymentErrUnknown, Message: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &models.PaymentError{Kind: models.PaymentErrTransport, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return &models.PaymentError{Kind: models.PaymentErrTimeout, Message: err.Error()}
		}
		return &models.PaymentError{Kind: models.PaymentErrTransport, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.PaymentError{Kind: models.PaymentErrUnknown, Message: fmt.Sprintf("failed to decode response: %s", err)}
	}
	return nil
}

type errorBody struct {
	Kind    models.PaymentErrorKind `json:"kind"`
	Message string                  `json:"message"`
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Kind == "" {
		return &models.PaymentError{
			Kind:    models.PaymentErrUnknown,
			Message: fmt.Sprintf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
		}
	}
	return &models.PaymentError{Kind: body.Kind, Message: body.Message}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
