package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/marioschiavon/uplink/internal/domain/repository"
	"github.com/marioschiavon/uplink/internal/usecase"
)

// GatewayWebhookHandler receives instance events pushed by the gateway and
// relays them to the customer's configured webhook.
type GatewayWebhookHandler struct {
	sessions  repository.SessionRepository
	forwarder *usecase.EventForwarder
	logger    *zap.Logger
}

func NewGatewayWebhookHandler(sessions repository.SessionRepository, forwarder *usecase.EventForwarder, logger *zap.Logger) *GatewayWebhookHandler {
	return &GatewayWebhookHandler{sessions: sessions, forwarder: forwarder, logger: logger}
}

// Handle accepts an event for a gateway instance. Unknown instances are acked
// with 200 so the gateway does not retry deliveries for deleted sessions.
func (h *GatewayWebhookHandler) Handle(c echo.Context) error {
	instance := c.Param("instance")
	if instance == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Instance name is required"})
	}

	var evt usecase.GatewayEvent
	if err := c.Bind(&evt); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid event body"})
	}

	session, err := h.sessions.GetByInstanceName(c.Request().Context(), instance)
	if err != nil {
		h.logger.Error("session lookup by instance failed",
			zap.String("instance", instance),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to resolve instance"})
	}
	if session == nil {
		h.logger.Debug("event for unknown instance dropped", zap.String("instance", instance))
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	if !h.forwarder.ShouldForward(session, evt.Event) {
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	// Delivery happens off the request path; the gateway only needs the ack.
	forward := *session
	go func() {
		if err := h.forwarder.Forward(context.Background(), &forward, evt); err != nil {
			h.logger.Warn("event forwarding failed",
				zap.String("session_id", forward.ID.String()),
				zap.String("event", evt.Event),
				zap.Error(err))
		}
	}()

	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
