package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	domainErrors "github.com/marioschiavon/uplink/internal/domain/errors"
	"github.com/marioschiavon/uplink/internal/domain/model"
	"github.com/marioschiavon/uplink/internal/usecase"
)

// StripeWebhookHandler verifies and dispatches Stripe webhook events.
type StripeWebhookHandler struct {
	gate          *usecase.SubscriptionGate
	webhookSecret string
	logger        *zap.Logger
}

func NewStripeWebhookHandler(gate *usecase.SubscriptionGate, webhookSecret string, logger *zap.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{gate: gate, webhookSecret: webhookSecret, logger: logger}
}

// Handle is the Stripe webhook endpoint. Signature failures are the only 4xx;
// reconciliation failures are recorded and acked so Stripe does not retry
// events we have already audited.
func (h *StripeWebhookHandler) Handle(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Failed to read request body"})
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		c.Request().Header.Get("Stripe-Signature"),
		h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		h.logger.Warn("stripe signature verification failed", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid signature"})
	}

	ctx := c.Request().Context()

	var audit model.JSONB
	if err := json.Unmarshal(payload, &audit); err != nil {
		audit = model.JSONB{}
	}

	err = h.gate.Begin(ctx, model.ProviderStripe, event.ID, string(event.Type), audit)
	if errors.Is(err, domainErrors.ErrDuplicateEvent) {
		h.logger.Debug("duplicate stripe event acked", zap.String("event_id", event.ID))
		return c.JSON(http.StatusOK, echo.Map{"received": true, "duplicate": true})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to record event"})
	}

	switch event.Type {
	case "checkout.session.completed":
		err = h.handleCheckoutCompleted(c, event)
	case "checkout.session.expired":
		err = h.handleCheckoutExpired(c, event)
	case "customer.subscription.updated":
		err = h.handleSubscriptionUpdated(c, event)
	case "customer.subscription.deleted":
		err = h.handleSubscriptionDeleted(c, event)
	case "invoice.payment_failed":
		err = h.handleInvoicePaymentFailed(c, event)
	default:
		h.logger.Debug("unhandled stripe event type", zap.String("type", string(event.Type)))
	}

	if err != nil {
		h.gate.Fail(ctx, event.ID, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

func (h *StripeWebhookHandler) handleCheckoutCompleted(c echo.Context, event stripe.Event) error {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return err
	}
	if cs.Mode != stripe.CheckoutSessionModeSubscription {
		return nil
	}

	evt := usecase.CheckoutCompleted{
		Provider:       model.ProviderStripe,
		SessionID:      cs.Metadata["session_id"],
		OrganizationID: cs.Metadata["org_id"],
		Currency:       string(cs.Currency),
	}
	if evt.SessionID == "" {
		evt.SessionID = cs.ClientReferenceID
	}
	if cs.Customer != nil {
		evt.CustomerID = cs.Customer.ID
	}
	if cs.Subscription != nil {
		evt.ProviderSubscriptionID = cs.Subscription.ID
	}
	if cs.AmountTotal > 0 {
		evt.Amount = decimal.NewFromInt(cs.AmountTotal).Div(decimal.NewFromInt(100))
	}

	return h.gate.HandleCheckoutCompleted(c.Request().Context(), evt)
}

func (h *StripeWebhookHandler) handleCheckoutExpired(c echo.Context, event stripe.Event) error {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return err
	}

	sessionRef := cs.Metadata["session_id"]
	if sessionRef == "" {
		sessionRef = cs.ClientReferenceID
	}
	return h.gate.HandleCheckoutExpired(c.Request().Context(), sessionRef, cs.Metadata["org_id"])
}

func (h *StripeWebhookHandler) handleSubscriptionUpdated(c echo.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return err
	}

	evt := usecase.SubscriptionUpdated{
		ProviderSubscriptionID: sub.ID,
		Status:                 mapStripeStatus(sub.Status),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		evt.CurrentPeriodEnd = &end
	}

	return h.gate.HandleSubscriptionUpdated(c.Request().Context(), evt)
}

func (h *StripeWebhookHandler) handleSubscriptionDeleted(c echo.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return err
	}
	return h.gate.HandleSubscriptionDeleted(c.Request().Context(), sub.ID)
}

func (h *StripeWebhookHandler) handleInvoicePaymentFailed(c echo.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return err
	}
	if inv.Subscription == nil {
		return nil
	}
	return h.gate.HandleInvoicePaymentFailed(c.Request().Context(), inv.Subscription.ID)
}

func mapStripeStatus(status stripe.SubscriptionStatus) model.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return model.SubscriptionStatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return model.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return model.SubscriptionStatusCancelled
	case stripe.SubscriptionStatusPaused:
		return model.SubscriptionStatusPaused
	default:
		return model.SubscriptionStatusPending
	}
}
