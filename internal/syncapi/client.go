// Package syncapi provides the HTTP client for the feed application's
// sync API: starting jobs, polling their status, and reporting outcome
// metadata.
package syncapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTimeout is the default timeout for individual HTTP requests
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the maximum allowed response size (1MB); sync API
	// responses are small JSON documents
	MaxResponseSize = 1 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "feedsync-agent/1.0"

	syncStartPath     = "/api/sync"
	syncStatusPath    = "/api/sync/status/"
	syncMetadataPath  = "/api/sync/metadata"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

// Client is the interface for sync API operations.
type Client interface {
	// StartSync starts an asynchronous sync job and returns its identifier
	StartSync(ctx context.Context) (uuid.UUID, error)

	// GetStatus fetches the current status of a sync job
	GetStatus(ctx context.Context, syncID uuid.UUID) (*StatusResponse, error)

	// UpdateMetadata posts a partial update to the shared sync-metadata record
	UpdateMetadata(ctx context.Context, update *MetadataUpdate) error
}

// defaultClient is the default Client implementation.
type defaultClient struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a sync API client for the given application base URL.
// If timeout is 0, DefaultTimeout is used.
func NewClient(baseURL string, timeout time.Duration) Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &defaultClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// StartSync performs the sync trigger POST. Any 2xx response is a
// successful start; everything else is a StartError carrying the status.
func (c *defaultClient) StartSync(ctx context.Context) (uuid.UUID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+syncStartPath, bytes.NewReader([]byte("{}")))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create sync start request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)

	resp, err := c.client.Do(req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to execute sync start request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return uuid.Nil, &StartError{StatusCode: resp.StatusCode}
	}

	body, err := readBody(resp.Body)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to read sync start response: %w", err)
	}

	var started startResponse
	if err := json.Unmarshal(body, &started); err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse sync start response: %w", err)
	}

	syncID, err := uuid.Parse(started.SyncID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("sync start response carries invalid job id %q: %w", started.SyncID, err)
	}

	return syncID, nil
}

// GetStatus performs one status poll for the given job identifier.
func (c *defaultClient) GetStatus(ctx context.Context, syncID uuid.UUID) (*StatusResponse, error) {
	url := c.baseURL + syncStatusPath + syncID.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync status request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", contentTypeJSON)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute sync status request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sync status request returned status %d", resp.StatusCode)
	}

	body, err := readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync status response: %w", err)
	}

	var status StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to parse sync status response: %w", err)
	}

	return &status, nil
}

// UpdateMetadata posts a partial metadata update. Non-2xx responses are
// returned as errors; the caller decides whether they are fatal.
func (c *defaultClient) UpdateMetadata(ctx context.Context, update *MetadataUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+syncMetadataPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create metadata update request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(headerContentType, contentTypeJSON)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute metadata update request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("metadata update returned status %d", resp.StatusCode)
	}

	return nil
}

// readBody reads a response body while enforcing MaxResponseSize.
func readBody(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, MaxResponseSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeds maximum allowed size of %d bytes", MaxResponseSize)
	}
	return body, nil
}
