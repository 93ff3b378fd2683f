package http

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/marioschiavon/uplink/internal/domain/repository"
)

// SubscriptionHandler serves subscription state for the billing page.
type SubscriptionHandler struct {
	sessions repository.SessionRepository
	subs     repository.SubscriptionRepository
	logger   *zap.Logger
}

func NewSubscriptionHandler(sessions repository.SessionRepository, subs repository.SubscriptionRepository, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{sessions: sessions, subs: subs, logger: logger}
}

// BySession returns the latest subscription for a session, or 404 when the
// session has never been through checkout.
func (h *SubscriptionHandler) BySession(c echo.Context) error {
	user, err := authUser(c)
	if err != nil {
		return err
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid session id"})
	}

	session, err := h.sessions.GetByID(c.Request().Context(), sessionID)
	if err != nil {
		h.logger.Error("session lookup failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load session"})
	}
	if session == nil || session.OrganizationID != user.OrganizationID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Session not found"})
	}

	sub, err := h.subs.GetBySessionID(c.Request().Context(), sessionID)
	if err != nil {
		h.logger.Error("subscription lookup failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load subscription"})
	}
	if sub == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "No subscription for this session"})
	}

	return c.JSON(http.StatusOK, sub)
}
