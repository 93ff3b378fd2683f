// Package gateway wraps the WhatsApp gateway's REST API. The client keeps the
// dashboard's coarse status contract: connection checks collapse every failure
// into an offline snapshot instead of returning errors, while teardown calls
// return errors that all callers treat as best-effort.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/marioschiavon/uplink/internal/config"
)

// Gateway state strings as reported by the connectionState endpoint.
const (
	stateOpen       = "open"
	stateConnecting = "connecting"
)

// Normalized status messages. The dashboard switches UI on these exact values.
const (
	MessageConnected    = "Connected"
	MessageQRCode       = "QRCODE"
	MessageDisconnected = "Disconnected"
	MessageOffline      = "Offline"
)

// Client is a thin HTTP client for the gateway REST API.
type Client struct {
	baseURL string
	// apiKey is the global provisioning key; per-instance calls use the
	// instance token instead.
	apiKey string
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a gateway client from config.
func NewClient(cfg config.GatewayConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
}

// ConnectionSnapshot is the normalized view of an instance's connection state.
type ConnectionSnapshot struct {
	Connected   bool   `json:"status"`
	Message     string `json:"message"`
	QRCode      string `json:"qrCode,omitempty"`
	PairingCode string `json:"pairingCode,omitempty"`
}

// QRPayload is the credential artifact returned by a connect call. Base64 may
// be empty when the gateway is still negotiating; callers retry after a delay.
type QRPayload struct {
	Base64      string `json:"base64"`
	PairingCode string `json:"pairingCode"`
	Code        string `json:"code"`
}

// HasQR reports whether the payload carries a scannable code.
func (q *QRPayload) HasQR() bool {
	return q != nil && (q.Base64 != "" || q.Code != "")
}

// InstanceCredentials is the result of provisioning a new gateway instance.
type InstanceCredentials struct {
	InstanceName string
	Token        string
	QR           *QRPayload
}

func (c *Client) do(ctx context.Context, method, path, token string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if token == "" {
		token = c.apiKey
	}
	req.Header.Set("apikey", token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}
