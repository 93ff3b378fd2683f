package http

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainErrors "github.com/marioschiavon/uplink/internal/domain/errors"
	"github.com/marioschiavon/uplink/internal/middleware/auth"
	"github.com/marioschiavon/uplink/internal/usecase"
)

// CheckoutHandler opens Stripe checkout and billing portal sessions.
type CheckoutHandler struct {
	checkout *usecase.CheckoutService
	logger   *zap.Logger
}

func NewCheckoutHandler(checkout *usecase.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, logger: logger}
}

type createCheckoutRequest struct {
	SessionID string `json:"session_id"`
	PriceID   string `json:"price_id"`
}

func (h *CheckoutHandler) Create(c echo.Context) error {
	user, err := auth.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Authentication required"})
	}

	var req createCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid session id"})
	}
	if req.PriceID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price_id is required"})
	}

	intent, err := h.checkout.CreateCheckout(c.Request().Context(), user.OrganizationID, sessionID, req.PriceID, user.Email)
	if err != nil {
		if errors.Is(err, domainErrors.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
		}
		h.logger.Error("checkout creation failed",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create checkout"})
	}

	return c.JSON(http.StatusCreated, intent)
}

type createPortalRequest struct {
	SessionID string `json:"session_id"`
}

func (h *CheckoutHandler) Portal(c echo.Context) error {
	user, err := auth.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Authentication required"})
	}

	var req createPortalRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid session id"})
	}

	url, err := h.checkout.CreatePortal(c.Request().Context(), user.OrganizationID, sessionID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
		}
		if errors.Is(err, domainErrors.ErrSubscriptionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
		}
		h.logger.Error("portal creation failed",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create billing portal session"})
	}

	return c.JSON(http.StatusOK, echo.Map{"url": url})
}
