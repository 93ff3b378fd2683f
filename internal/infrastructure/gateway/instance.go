package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

type connectionStateResponse struct {
	Instance struct {
		InstanceName string `json:"instanceName"`
		State        string `json:"state"`
	} `json:"instance"`
}

// CheckConnection polls the instance's connection state and normalizes it.
// Failures of any kind (transport, non-2xx, malformed payload) collapse into
// an Offline snapshot; this method never returns an error.
func (c *Client) CheckConnection(ctx context.Context, instanceName, token string) ConnectionSnapshot {
	path := fmt.Sprintf("/instance/connectionState/%s", instanceName)

	body, err := c.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			c.logger.Debug("gateway connection check rejected",
				zap.String("instance", instanceName),
				zap.Int("status_code", apiErr.StatusCode))
		} else {
			c.logger.Debug("gateway unreachable",
				zap.String("instance", instanceName),
				zap.Error(err))
		}
		return ConnectionSnapshot{Connected: false, Message: MessageOffline}
	}

	var state connectionStateResponse
	if err := json.Unmarshal(body, &state); err != nil {
		c.logger.Debug("gateway returned malformed connection state",
			zap.String("instance", instanceName),
			zap.Error(err))
		return ConnectionSnapshot{Connected: false, Message: MessageOffline}
	}

	switch state.Instance.State {
	case stateOpen:
		return ConnectionSnapshot{Connected: true, Message: MessageConnected}
	case stateConnecting:
		return ConnectionSnapshot{Connected: false, Message: MessageQRCode}
	default:
		return ConnectionSnapshot{Connected: false, Message: MessageDisconnected}
	}
}

// Connect asks the gateway to (re)start the pairing flow for an instance. The
// same endpoint both initiates the connect and returns the current QR. A
// payload without a QR is not an error; the gateway may still be negotiating.
func (c *Client) Connect(ctx context.Context, instanceName, token string) (*QRPayload, error) {
	path := fmt.Sprintf("/instance/connect/%s", instanceName)

	body, err := c.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, fmt.Errorf("connect failed for %s: %w", instanceName, err)
	}

	var qr QRPayload
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, fmt.Errorf("malformed connect response for %s: %w", instanceName, err)
	}

	return &qr, nil
}

// Logout disconnects the instance from WhatsApp but keeps it on the gateway.
func (c *Client) Logout(ctx context.Context, instanceName, token string) error {
	path := fmt.Sprintf("/instance/logout/%s", instanceName)
	if _, err := c.do(ctx, http.MethodDelete, path, token, nil); err != nil {
		return fmt.Errorf("logout failed for %s: %w", instanceName, err)
	}
	return nil
}

// DeleteInstance removes the instance from the gateway entirely.
func (c *Client) DeleteInstance(ctx context.Context, instanceName, token string) error {
	path := fmt.Sprintf("/instance/delete/%s", instanceName)
	if _, err := c.do(ctx, http.MethodDelete, path, token, nil); err != nil {
		return fmt.Errorf("delete failed for %s: %w", instanceName, err)
	}
	return nil
}

type createInstanceRequest struct {
	InstanceName string `json:"instanceName"`
	QRCode       bool   `json:"qrcode"`
	Integration  string `json:"integration"`
}

type createInstanceResponse struct {
	Instance struct {
		InstanceName string `json:"instanceName"`
	} `json:"instance"`
	Hash struct {
		APIKey string `json:"apikey"`
	} `json:"hash"`
	QRCode *QRPayload `json:"qrcode"`
}

// CreateInstance provisions a new named instance using the global API key and
// returns the per-instance token the gateway generated for it.
func (c *Client) CreateInstance(ctx context.Context, instanceName string) (*InstanceCredentials, error) {
	req := createInstanceRequest{
		InstanceName: instanceName,
		QRCode:       true,
		Integration:  "WHATSAPP-BAILEYS",
	}

	body, err := c.do(ctx, http.MethodPost, "/instance/create", "", req)
	if err != nil {
		return nil, fmt.Errorf("instance creation failed for %s: %w", instanceName, err)
	}

	var resp createInstanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("malformed instance creation response: %w", err)
	}

	if resp.Hash.APIKey == "" {
		return nil, fmt.Errorf("gateway returned no token for instance %s", instanceName)
	}

	c.logger.Info("gateway instance provisioned",
		zap.String("instance", resp.Instance.InstanceName))

	return &InstanceCredentials{
		InstanceName: resp.Instance.InstanceName,
		Token:        resp.Hash.APIKey,
		QR:           resp.QRCode,
	}, nil
}

type setWebhookRequest struct {
	Webhook struct {
		Enabled bool     `json:"enabled"`
		URL     string   `json:"url"`
		Events  []string `json:"events"`
	} `json:"webhook"`
}

// SetWebhook points the gateway's own event webhook for an instance at url.
func (c *Client) SetWebhook(ctx context.Context, instanceName, token, url string, events []string) error {
	var req setWebhookRequest
	req.Webhook.Enabled = url != ""
	req.Webhook.URL = url
	req.Webhook.Events = events

	path := fmt.Sprintf("/webhook/set/%s", instanceName)
	if _, err := c.do(ctx, http.MethodPost, path, token, req); err != nil {
		return fmt.Errorf("webhook configuration failed for %s: %w", instanceName, err)
	}
	return nil
}
