package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/marioschiavon/uplink/internal/domain/errors"
	"github.com/marioschiavon/uplink/internal/domain/model"
	"github.com/marioschiavon/uplink/internal/infrastructure/mercadopago"
	"github.com/marioschiavon/uplink/internal/usecase"
)

// PreapprovalFetcher is the slice of the Mercado Pago client this handler
// needs. Notifications carry only an id; the state comes from a follow-up GET.
type PreapprovalFetcher interface {
	GetPreapproval(ctx context.Context, id string) (*mercadopago.Preapproval, error)
}

// MercadoPagoWebhookHandler dispatches Mercado Pago preapproval notifications.
type MercadoPagoWebhookHandler struct {
	gate   *usecase.SubscriptionGate
	mp     PreapprovalFetcher
	logger *zap.Logger
}

func NewMercadoPagoWebhookHandler(gate *usecase.SubscriptionGate, mp PreapprovalFetcher, logger *zap.Logger) *MercadoPagoWebhookHandler {
	return &MercadoPagoWebhookHandler{gate: gate, mp: mp, logger: logger}
}

// mpNotification is the notification envelope Mercado Pago posts. There is no
// signature; the payload is only a pointer and the authoritative state is
// fetched from the API with our own credentials.
type mpNotification struct {
	ID     json.Number `json:"id"`
	Type   string      `json:"type"`
	Action string      `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (h *MercadoPagoWebhookHandler) Handle(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Failed to read request body"})
	}

	var notif mpNotification
	if err := json.Unmarshal(payload, &notif); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid notification body"})
	}

	if notif.Type != "subscription_preapproval" || notif.Data.ID == "" {
		h.logger.Debug("ignoring mercadopago notification",
			zap.String("type", notif.Type),
			zap.String("action", notif.Action))
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	ctx := c.Request().Context()

	eventID := notif.ID.String()
	if eventID == "" {
		eventID = fmt.Sprintf("%s:%s", notif.Data.ID, notif.Action)
	}

	var audit model.JSONB
	if err := json.Unmarshal(payload, &audit); err != nil {
		audit = model.JSONB{}
	}

	err = h.gate.Begin(ctx, model.ProviderMercadoPago, eventID, notif.Type, audit)
	if errors.Is(err, domainErrors.ErrDuplicateEvent) {
		return c.JSON(http.StatusOK, echo.Map{"received": true, "duplicate": true})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to record event"})
	}

	if err := h.reconcile(ctx, notif.Data.ID); err != nil {
		h.gate.Fail(ctx, eventID, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

func (h *MercadoPagoWebhookHandler) reconcile(ctx context.Context, preapprovalID string) error {
	pre, err := h.mp.GetPreapproval(ctx, preapprovalID)
	if err != nil {
		return err
	}

	switch pre.Status {
	case mercadopago.StatusAuthorized:
		sessionRef, orgRef := splitExternalReference(pre.ExternalReference)
		evt := usecase.CheckoutCompleted{
			Provider:               model.ProviderMercadoPago,
			CustomerID:             pre.PayerEmail,
			ProviderSubscriptionID: pre.ID,
			SessionID:              sessionRef,
			OrganizationID:         orgRef,
			Currency:               pre.AutoRecurring.CurrencyID,
			PeriodEnd:              pre.NextPaymentTime(),
		}
		if pre.AutoRecurring.TransactionAmount > 0 {
			evt.Amount = decimal.NewFromFloat(pre.AutoRecurring.TransactionAmount)
		}
		return h.gate.HandleCheckoutCompleted(ctx, evt)
	case mercadopago.StatusCancelled:
		return h.gate.HandleSubscriptionDeleted(ctx, pre.ID)
	case mercadopago.StatusPaused:
		return h.gate.HandleSubscriptionUpdated(ctx, usecase.SubscriptionUpdated{
			ProviderSubscriptionID: pre.ID,
			Status:                 model.SubscriptionStatusPaused,
			CurrentPeriodEnd:       pre.NextPaymentTime(),
		})
	default:
		h.logger.Debug("mercadopago preapproval status ignored",
			zap.String("preapproval_id", pre.ID),
			zap.String("status", pre.Status))
		return nil
	}
}

// splitExternalReference parses the "sessionID:orgID" reference set at
// preapproval creation time.
func splitExternalReference(ref string) (sessionRef, orgRef string) {
	parts := strings.SplitN(ref, ":", 2)
	sessionRef = parts[0]
	if len(parts) == 2 {
		orgRef = parts[1]
	}
	return sessionRef, orgRef
}
