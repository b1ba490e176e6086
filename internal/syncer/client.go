package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

const (
	headerSiteID   = "X-Site-ID"
	headerDeviceID = "X-Device-ID"
	batchPath      = "/v1/attendance/batch"
	rosterPath     = "/v1/roster"
	maxErrorBody   = 4096

	// Roster responses carry one embedding per identity.
	defaultMaxResponseBytes = 8 << 20
)

// ClientConfig holds the authority endpoint and terminal credentials.
type ClientConfig struct {
	BaseURL  string
	SiteID   string
	SyncCode string
	DeviceID string
	Timeout  time.Duration
	// MaxResponseBytes bounds how much of a response body is read.
	MaxResponseBytes int64
}

// Configured reports whether uploads can be attempted at all.
func (c ClientConfig) Configured() bool {
	return c.BaseURL != "" && c.SiteID != "" && c.SyncCode != ""
}

// Client talks to the remote authority. It performs exactly one attempt per
// call: retries belong to the next sync cycle so a batch is never uploaded
// twice within one.
type Client struct {
	httpClient *http.Client
	config     ClientConfig
}

func NewClient(config ClientConfig) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxResponseBytes <= 0 {
		config.MaxResponseBytes = defaultMaxResponseBytes
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
	}
}

// SubmitBatch uploads a batch of records. Errors wrap ErrTransient,
// ErrPermanent or ErrNotConfigured, or are a *ConflictError.
func (c *Client) SubmitBatch(ctx context.Context, req domain.BatchRequest) (*domain.BatchResponse, error) {
	var resp domain.BatchResponse
	if err := c.do(ctx, http.MethodPost, batchPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchRoster downloads the enrolled identities for this site.
func (c *Client) FetchRoster(ctx context.Context) (*domain.RosterResponse, error) {
	var resp domain.RosterResponse
	if err := c.do(ctx, http.MethodGet, rosterPath, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	if !c.config.Configured() {
		return ErrNotConfigured
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshal request: %v", ErrPermanent, err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrPermanent, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.SyncCode)
	req.Header.Set(headerSiteID, c.config.SiteID)
	if c.config.DeviceID != "" {
		req.Header.Set(headerDeviceID, c.config.DeviceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}
	if int64(len(respBody)) > c.config.MaxResponseBytes {
		if resp.StatusCode >= 400 {
			return classifyStatus(resp.StatusCode, respBody[:c.config.MaxResponseBytes])
		}
		return fmt.Errorf("%w: response exceeds %d bytes", ErrPermanent, c.config.MaxResponseBytes)
	}

	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: invalid response: %v", ErrPermanent, err)
		}
	}

	return nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: timeout: %v", ErrTransient, err)
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// classifyStatus maps an error response onto the sync error taxonomy.
// A duplicate-record signature is a conflict whatever the status code.
func classifyStatus(status int, body []byte) error {
	if conflict, ok := parseConflict(status, body); ok {
		return conflict
	}

	text := string(body)
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}

	switch {
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return &StatusError{StatusCode: status, Body: text, kind: ErrTransient}
	default:
		return &StatusError{StatusCode: status, Body: text, kind: ErrPermanent}
	}
}
