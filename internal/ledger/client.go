// Package ledger stores rendered report blobs on a Hedera file-storage bridge
// and maps stored file IDs to public explorer URLs.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
	"github.com/auditforge/auditforge/internal/config"
)

// Client implements schemas.Ledger against a file-storage bridge exposing a
// single create-file endpoint. The bridge returns a file ID in Hedera's
// shard.realm.num form (for example "0.0.48673911").
type Client struct {
	endpoint   string
	network    string
	httpClient *http.Client
	logger     *zap.Logger
}

type storeResponse struct {
	FileID string `json:"file_id"`
	Error  string `json:"error,omitempty"`
}

// NewClient initializes the client. The endpoint must be set; callers disable
// ledger storage by not constructing a Client at all.
func NewClient(cfg config.PublishConfig, logger *zap.Logger) (*Client, error) {
	if cfg.LedgerEndpoint == "" {
		return nil, fmt.Errorf("ledger endpoint is required")
	}
	timeout := cfg.LedgerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   cfg.LedgerEndpoint,
		network:    cfg.Network,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("ledger"),
	}, nil
}

// Store uploads the blob and returns the assigned file ID, retrying transient
// failures with exponential backoff.
func (c *Client) Store(ctx context.Context, blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", fmt.Errorf("refusing to store an empty blob")
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 90 * time.Second
	b.MaxInterval = 15 * time.Second

	var fileID string

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(blob))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/octet-stream")

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			c.logger.Warn("Network error during ledger upload, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			// Fall through to decoding below.
		case resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode >= http.StatusInternalServerError:
			c.logger.Warn("Transient ledger API error, retrying...",
				zap.Int("status_code", resp.StatusCode),
				zap.Duration("duration", duration),
			)
			return fmt.Errorf("transient API error: status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("ledger API error: status %d, body: %s",
				resp.StatusCode, string(respBody)))
		}

		var parsed storeResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode ledger response: %w", err))
		}
		if parsed.FileID == "" {
			return backoff.Permanent(fmt.Errorf("ledger response carried no file ID"))
		}

		fileID = parsed.FileID
		c.logger.Info("Stored report on ledger",
			zap.String("file_id", fileID),
			zap.Int("bytes", len(blob)),
			zap.Duration("duration", duration),
		)
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", fmt.Errorf("ledger upload failed after retries: %w", err)
	}
	return fileID, nil
}

// ViewURL maps a file ID onto the hashscan explorer for the configured network.
func (c *Client) ViewURL(ref string) string {
	if ref == "" {
		return ""
	}
	return fmt.Sprintf("https://hashscan.io/%s/file/%s", c.network, ref)
}

var _ schemas.Ledger = (*Client)(nil)
