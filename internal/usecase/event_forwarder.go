package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marioschiavon/uplink/internal/domain/model"
)

// GatewayEvent is one inbound event from the gateway for an instance.
type GatewayEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// forwardedEvent is the body delivered to the client's webhook endpoint.
type forwardedEvent struct {
	Event     string          `json:"event"`
	Instance  string          `json:"instance"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventForwarder delivers gateway events to customer webhook endpoints.
// Deliveries are fire-and-forget with a hard timeout; only failures are
// logged.
type EventForwarder struct {
	http    *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewEventForwarder creates an event forwarder with the given per-delivery
// timeout.
func NewEventForwarder(timeout time.Duration, logger *zap.Logger) *EventForwarder {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &EventForwarder{
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
	}
}

// NewEventForwarderWithClient creates a forwarder using the given HTTP client.
func NewEventForwarderWithClient(client *http.Client, timeout time.Duration, logger *zap.Logger) *EventForwarder {
	f := NewEventForwarder(timeout, logger)
	f.http = client
	return f
}

// ShouldForward reports whether the session wants this event delivered.
func (f *EventForwarder) ShouldForward(session *model.Session, event string) bool {
	if !session.WebhookEnabled || session.WebhookURL == "" {
		return false
	}
	if len(session.WebhookEvents) == 0 {
		return true
	}
	for _, e := range session.WebhookEvents {
		if e == event {
			return true
		}
	}
	return false
}

// Forward delivers one event to the session's webhook URL. The target must
// be HTTPS; anything else is refused before a byte leaves the process.
func (f *EventForwarder) Forward(ctx context.Context, session *model.Session, evt GatewayEvent) error {
	if !strings.HasPrefix(session.WebhookURL, "https://") {
		return fmt.Errorf("webhook url for session %s is not https", session.ID)
	}

	body, err := json.Marshal(forwardedEvent{
		Event:     evt.Event,
		Instance:  session.InstanceName,
		SessionID: session.ID.String(),
		Timestamp: time.Now().UTC(),
		Data:      evt.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal forwarded event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, session.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create delivery request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", evt.Event)
	req.Header.Set("X-Session-Id", session.ID.String())
	req.Header.Set("X-Instance-Name", session.InstanceName)
	req.Header.Set("apikey", session.APIToken)

	resp, err := f.http.Do(req)
	if err != nil {
		f.logger.Warn("webhook delivery failed",
			zap.String("session_id", session.ID.String()),
			zap.String("event", evt.Event),
			zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn("webhook delivery rejected",
			zap.String("session_id", session.ID.String()),
			zap.String("event", evt.Event),
			zap.Int("status_code", resp.StatusCode))
		return fmt.Errorf("webhook delivery returned status %d", resp.StatusCode)
	}

	return nil
}
