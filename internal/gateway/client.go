// ABOUTME: HTTP client core for the upstream messaging gateway
// ABOUTME: One base URL, two credential planes, JSON in/out, per-call timeout

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/herald/internal/metrics"
)

// Config holds configuration for creating a gateway Client.
type Config struct {
	// BaseURL is the root URL for gateway API requests.
	BaseURL string

	// PartnerToken authenticates management-surface calls
	// (channel create/delete, project listing).
	PartnerToken string

	// Timeout bounds each individual HTTP call. Defaults to 15s.
	Timeout time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client is a stateless HTTP client for the upstream gateway. Management
// calls carry the partner token; session calls carry a per-channel token
// passed in by the caller. The client makes exactly one attempt per call;
// retry policy belongs to callers.
type Client struct {
	baseURL      string
	partnerToken string
	httpClient   *http.Client
	logger       *slog.Logger
}

// New creates a gateway client from the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway: base URL is required")
	}
	if cfg.PartnerToken == "" {
		return nil, fmt.Errorf("gateway: partner token is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		partnerToken: cfg.PartnerToken,
		httpClient:   httpClient,
		logger:       logger.With("component", "gateway"),
	}, nil
}

// do executes one gateway API request. The path is relative to the base
// URL; token selects the credential plane (partner or channel). A non-nil
// requestBody is JSON-encoded. Returns the raw response body and content
// type; non-2xx responses come back as ErrChannelNotFound (404) or *APIError.
func (c *Client) do(ctx context.Context, op, method, path, token string, requestBody any) ([]byte, string, error) {
	start := time.Now()
	body, contentType, err := c.doOnce(ctx, method, path, token, requestBody)

	outcome := "ok"
	if err != nil {
		outcome = classify(err)
	}
	metrics.GatewayCalls.WithLabelValues(op, outcome).Inc()
	metrics.GatewayCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	return body, contentType, err
}

func (c *Client) doOnce(ctx context.Context, method, path, token string, requestBody any) ([]byte, string, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, "", fmt.Errorf("gateway: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, "", fmt.Errorf("gateway: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json, image/*")
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "", fmt.Errorf("gateway: reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("gateway call failed", "method", method, "path", path, "status", resp.StatusCode)
		return nil, "", errorFromResponse(resp.StatusCode, body)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// maxResponseBytes caps gateway response reads; pairing code images are the
// largest expected payload and stay well under this.
const maxResponseBytes = 4 << 20

// getJSON performs a GET and decodes the JSON response into result.
func (c *Client) getJSON(ctx context.Context, op, path, token string, result any) error {
	body, _, err := c.do(ctx, op, http.MethodGet, path, token, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("gateway: decoding response: %w", err)
	}
	return nil
}

// postJSON performs a POST and decodes the JSON response into result
// when result is non-nil.
func (c *Client) postJSON(ctx context.Context, op, path, token string, requestBody, result any) error {
	body, _, err := c.do(ctx, op, http.MethodPost, path, token, requestBody)
	if err != nil {
		return err
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("gateway: decoding response: %w", err)
		}
	}
	return nil
}
