// Package mercadopago is a minimal REST client for the Mercado Pago
// preapproval (recurring payment) API, covering what webhook reconciliation
// needs.
package mercadopago

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/marioschiavon/uplink/internal/config"
)

const apiBaseURL = "https://api.mercadopago.com"

// Preapproval statuses relevant to reconciliation.
const (
	StatusAuthorized = "authorized"
	StatusPaused     = "paused"
	StatusCancelled  = "cancelled"
	StatusPending    = "pending"
)

// Client calls the Mercado Pago API with a bearer access token.
type Client struct {
	accessToken string
	http        *http.Client
	logger      *zap.Logger
}

// NewClient creates a Mercado Pago client from config.
func NewClient(cfg config.MercadoPagoConfig, logger *zap.Logger) *Client {
	return &Client{
		accessToken: cfg.AccessToken,
		http:        &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
}

// Preapproval is the subset of the preapproval resource reconciliation uses.
// ExternalReference carries the session id set at checkout creation.
type Preapproval struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	PayerID           int64  `json:"payer_id"`
	PayerEmail        string `json:"payer_email"`
	ExternalReference string `json:"external_reference"`
	NextPaymentDate   string `json:"next_payment_date"`
	AutoRecurring     struct {
		TransactionAmount float64 `json:"transaction_amount"`
		CurrencyID        string  `json:"currency_id"`
	} `json:"auto_recurring"`
}

// NextPaymentTime parses NextPaymentDate, returning nil when absent.
func (p *Preapproval) NextPaymentTime() *time.Time {
	if p.NextPaymentDate == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, p.NextPaymentDate)
	if err != nil {
		return nil
	}
	return &t
}

// GetPreapproval fetches a preapproval by id.
func (c *Client) GetPreapproval(ctx context.Context, id string) (*Preapproval, error) {
	url := fmt.Sprintf("%s/preapproval/%s", apiBaseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mercadopago request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read mercadopago response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("mercadopago preapproval fetch failed",
			zap.String("preapproval_id", id),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(body)))
		return nil, fmt.Errorf("mercadopago returned status %d", resp.StatusCode)
	}

	var pre Preapproval
	if err := json.Unmarshal(body, &pre); err != nil {
		return nil, fmt.Errorf("malformed preapproval response: %w", err)
	}

	return &pre, nil
}
