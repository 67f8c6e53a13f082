package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/paykit-wallet/paykitd/internal/models"
	"github.com/paykit-wallet/paykitd/pkg/logger"
)

const noiseEndpointPath = models.PaykitRoot + "/noise"

// HomeserverClient talks to pubky-style homeservers over HTTP. Every
// identity's storage lives under {baseURL}/{pubkey}{path}.
type HomeserverClient struct {
	logger  *logger.Logger
	baseURL string
	session string
	client  *http.Client
	limiter *rate.Limiter
}

// HomeserverOption configures a HomeserverClient.
type HomeserverOption func(*HomeserverClient)

// WithSession sets the session token sent on writes to the owner's storage.
func WithSession(token string) HomeserverOption {
	return func(c *HomeserverClient) { c.session = token }
}

// WithRateLimit caps outgoing requests per second. Zero disables the limit.
func WithRateLimit(perSecond float64, burst int) HomeserverOption {
	return func(c *HomeserverClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) HomeserverOption {
	return func(c *HomeserverClient) { c.client = client }
}

// NewHomeserverClient creates a client for the homeserver at baseURL.
func NewHomeserverClient(baseURL string, timeout time.Duration, logger *logger.Logger, opts ...HomeserverOption) *HomeserverClient {
	c := &HomeserverClient{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HomeserverClient) url(owner, p string) string {
	return c.baseURL + "/" + owner + p
}

func (c *HomeserverClient) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != "" && method != http.MethodGet {
		req.Header.Set("Authorization", "Bearer "+c.session)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	return resp, nil
}

func unexpectedStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func (c *HomeserverClient) Publish(ctx context.Context, record *models.Record) error {
	resp, err := c.do(ctx, http.MethodPut, c.url(record.Key.OwnerPubkey, record.Key.Path()), record.Data)
	if err != nil {
		return fmt.Errorf("failed to publish record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to publish record: %w", unexpectedStatus(resp))
	}
	c.logger.Debug("Published record", "path", record.Key.Path(), "owner", record.Key.OwnerPubkey)
	return nil
}

func (c *HomeserverClient) Fetch(ctx context.Context, key models.RecordKey) (*models.Record, error) {
	data, err := c.get(ctx, key.OwnerPubkey, key.Path())
	if err != nil || data == nil {
		return nil, err
	}
	return &models.Record{Key: key, Data: data}, nil
}

// get returns nil, nil on 404.
func (c *HomeserverClient) get(ctx context.Context, owner, p string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, c.url(owner, p), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", p, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: %w", p, unexpectedStatus(resp))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

// ListIDs reads the directory listing, one entry (URL or path) per line.
func (c *HomeserverClient) ListIDs(ctx context.Context, kind models.RecordKind, ownerPubkey, recipientPubkey string) ([]string, error) {
	dir := models.RecordKey{Kind: kind, OwnerPubkey: ownerPubkey, RecipientPubkey: recipientPubkey}.Dir()
	data, err := c.get(ctx, ownerPubkey, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, "/") {
			continue
		}
		ids = append(ids, path.Base(line))
	}
	return ids, nil
}

// ListRecipients reads the kind directory; recipients are its subdirectory entries.
func (c *HomeserverClient) ListRecipients(ctx context.Context, kind models.RecordKind, ownerPubkey string) ([]string, error) {
	dir := models.KindDir(kind)
	data, err := c.get(ctx, ownerPubkey, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var recipients []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasSuffix(line, "/") {
			continue
		}
		if name := path.Base(strings.TrimSuffix(line, "/")); name != "" && name != "." && name != "/" {
			recipients = append(recipients, name)
		}
	}
	return recipients, nil
}

func (c *HomeserverClient) Delete(ctx context.Context, key models.RecordKey) error {
	resp, err := c.do(ctx, http.MethodDelete, c.url(key.OwnerPubkey, key.Path()), nil)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to delete record: %w", unexpectedStatus(resp))
	}
	return nil
}

// DeleteBatch deletes ids one by one. Failures are skipped and returned
// together; the count covers successful deletes only.
func (c *HomeserverClient) DeleteBatch(ctx context.Context, kind models.RecordKind, ownerPubkey, recipientPubkey string, ids []string) (int, error) {
	var (
		deleted int
		errs    error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return deleted, multierr.Append(errs, err)
		}
		key := models.RecordKey{Kind: kind, OwnerPubkey: ownerPubkey, RecipientPubkey: recipientPubkey, ID: id}
		if err := c.Delete(ctx, key); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		deleted++
	}
	return deleted, errs
}

func (c *HomeserverClient) FetchNoiseEndpoint(ctx context.Context, ownerPubkey string) (*models.NoiseEndpoint, error) {
	data, err := c.get(ctx, ownerPubkey, noiseEndpointPath)
	if err != nil || data == nil {
		return nil, err
	}
	var endpoint models.NoiseEndpoint
	if err := json.Unmarshal(data, &endpoint); err != nil {
		return nil, fmt.Errorf("failed to decode noise endpoint: %w", err)
	}
	return &endpoint, nil
}

// PublishNoiseEndpoint advertises the owner's Noise endpoint.
func (c *HomeserverClient) PublishNoiseEndpoint(ctx context.Context, ownerPubkey string, endpoint *models.NoiseEndpoint) error {
	data, err := json.Marshal(endpoint)
	if err != nil {
		return fmt.Errorf("failed to encode noise endpoint: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPut, c.url(ownerPubkey, noiseEndpointPath), data)
	if err != nil {
		return fmt.Errorf("failed to publish noise endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to publish noise endpoint: %w", unexpectedStatus(resp))
	}
	return nil
}
