// Package storage uploads transcript payloads to a decentralized-storage
// publisher and retrieves them through an aggregator. Publishers are tried
// strictly in order; the aggregator is a single read endpoint.
package storage

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

	"florafi/internal/logging"
)

// ErrNoBlobID means a publisher accepted the upload but the response carried
// no blob identifier. The payload may be stored; the reference to it is lost,
// so this is surfaced as malformed-response rather than retried on the next
// candidate.
var ErrNoBlobID = errors.New("storage: publisher response contained no blob id")

// UploadResult is the reference to a stored payload. Immutable once returned;
// callers persist the identifier rather than recomputing it.
type UploadResult struct {
	BlobID string
	URL    string
}

// Config holds the endpoint set and defaults.
type Config struct {
	// Publishers are tried in order until one accepts the upload.
	Publishers []string
	// Aggregator is the read-side base URL.
	Aggregator string
	// Epochs is the default storage duration passed on Store.
	Epochs int
	Timeout time.Duration
}

// Client talks to the publisher/aggregator pair.
type Client struct {
	publishers []string
	aggregator string
	epochs     int
	httpClient *http.Client
}

// NewClient creates a storage client. Publisher and aggregator URLs are
// normalized without trailing slashes.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	epochs := cfg.Epochs
	if epochs <= 0 {
		epochs = 1
	}
	publishers := make([]string, 0, len(cfg.Publishers))
	for _, p := range cfg.Publishers {
		if p = strings.TrimRight(strings.TrimSpace(p), "/"); p != "" {
			publishers = append(publishers, p)
		}
	}
	return &Client{
		publishers: publishers,
		aggregator: strings.TrimRight(strings.TrimSpace(cfg.Aggregator), "/"),
		epochs:     epochs,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// storeResponse covers both publisher success shapes. A first-time store
// returns newlyCreated; re-storing an identical payload returns
// alreadyCertified.
type storeResponse struct {
	NewlyCreated *struct {
		BlobObject struct {
			BlobID string `json:"blobId"`
		} `json:"blobObject"`
	} `json:"newlyCreated"`
	AlreadyCertified *struct {
		BlobID string `json:"blobId"`
	} `json:"alreadyCertified"`
}

func (r storeResponse) blobID() string {
	if r.NewlyCreated != nil && r.NewlyCreated.BlobObject.BlobID != "" {
		return r.NewlyCreated.BlobObject.BlobID
	}
	if r.AlreadyCertified != nil {
		return r.AlreadyCertified.BlobID
	}
	return ""
}

// Store uploads the payload, walking the publisher candidates in order and
// stopping at the first that accepts it. epochs <= 0 uses the configured
// default. A publisher that accepts the PUT but returns an unusable body
// ends the walk: the payload landed somewhere, repeating the upload elsewhere
// would only store a duplicate without recovering the lost id.
func (c *Client) Store(ctx context.Context, payload []byte, epochs int) (*UploadResult, error) {
	if len(c.publishers) == 0 {
		return nil, errors.New("storage: no publishers configured")
	}
	if epochs <= 0 {
		epochs = c.epochs
	}

	start := time.Now()
	var lastErr error

	for i, publisher := range c.publishers {
		url := fmt.Sprintf("%s/v1/store?epochs=%d", publisher, epochs)
		logging.StorageDebug("store attempt %d/%d: %s payload=%dB", i+1, len(c.publishers), publisher, len(payload))

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("storage: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("publisher %s: %w", publisher, err)
			logging.StorageWarn("store via %s failed: %v", publisher, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("publisher %s: read response: %w", publisher, readErr)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("publisher %s: status %d: %s", publisher, resp.StatusCode, strings.TrimSpace(string(body)))
			logging.StorageWarn("store via %s: status %d", publisher, resp.StatusCode)
			continue
		}

		var sr storeResponse
		if err := json.Unmarshal(body, &sr); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNoBlobID, publisher, err)
		}
		id := sr.blobID()
		if id == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoBlobID, publisher)
		}

		logging.Storage("stored blob %s via %s in %v", id, publisher, time.Since(start))
		return &UploadResult{BlobID: id, URL: c.BlobURL(id)}, nil
	}

	return nil, fmt.Errorf("storage: all %d publishers failed (last error: %w)", len(c.publishers), lastErr)
}

// BlobURL returns the aggregator read URL for a blob id.
func (c *Client) BlobURL(id string) string {
	return fmt.Sprintf("%s/v1/%s", c.aggregator, id)
}

// Fetch retrieves a stored blob through the aggregator.
func (c *Client) Fetch(ctx context.Context, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BlobURL(id), nil)
	if err != nil {
		return nil, fmt.Errorf("storage: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage: fetch %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("storage: blob %s not found", id)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("storage: fetch %s: status %d", id, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Certify acknowledges a stored blob. The publisher certifies server-side as
// part of the store flow, so there is nothing to do client-side; this exists
// so callers have an explicit completion point and never mistake it for a
// consistency guarantee.
func (c *Client) Certify(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("storage: empty blob id")
	}
	logging.StorageDebug("certify %s: server-side, nothing to send", id)
	return nil
}
