package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainErrors "github.com/marioschiavon/uplink/internal/domain/errors"
	"github.com/marioschiavon/uplink/internal/lifecycle"
	"github.com/marioschiavon/uplink/internal/middleware/auth"
	"github.com/marioschiavon/uplink/internal/usecase"
)

// SessionHandler exposes session CRUD and lifecycle actions.
type SessionHandler struct {
	sessions *usecase.SessionService
	logger   *zap.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(sessions *usecase.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// stateResponse is the lifecycle state as rendered to the dashboard.
type stateResponse struct {
	Phase       string `json:"phase"`
	QRCode      string `json:"qr_code,omitempty"`
	PairingCode string `json:"pairing_code,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func renderState(state lifecycle.State) stateResponse {
	resp := stateResponse{
		Phase:       state.Phase.String(),
		QRCode:      state.QRCode,
		PairingCode: state.PairingCode,
		Reason:      state.Reason,
	}
	if !state.ExpiresAt.IsZero() {
		resp.ExpiresAt = state.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *SessionHandler) List(c echo.Context) error {
	user, err := auth.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Authentication required"})
	}

	sessions, err := h.sessions.List(c.Request().Context(), user.OrganizationID)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"sessions": sessions})
}

func (h *SessionHandler) Create(c echo.Context) error {
	user, err := auth.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Authentication required"})
	}

	var req usecase.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}

	session, err := h.sessions.Create(c.Request().Context(), user.OrganizationID, req)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) Get(c echo.Context) error {
	user, sessionID, err := h.scope(c)
	if err != nil {
		return err
	}

	session, err := h.sessions.Get(c.Request().Context(), user.OrganizationID, sessionID)
	if err != nil {
		return h.fail(c, err)
	}

	state, err := h.sessions.State(c.Request().Context(), user.OrganizationID, sessionID)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"session": session,
		"state":   renderState(state),
	})
}

func (h *SessionHandler) Start(c echo.Context) error {
	user, sessionID, err := h.scope(c)
	if err != nil {
		return err
	}

	state, err := h.sessions.Start(c.Request().Context(), user.OrganizationID, sessionID)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, renderState(state))
}

func (h *SessionHandler) RefreshQR(c echo.Context) error {
	user, sessionID, err := h.scope(c)
	if err != nil {
		return err
	}

	state, err := h.sessions.RefreshQR(c.Request().Context(), user.OrganizationID, sessionID)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, renderState(state))
}

func (h *SessionHandler) Close(c echo.Context) error {
	user, sessionID, err := h.scope(c)
	if err != nil {
		return err
	}

	state, err := h.sessions.Close(c.Request().Context(), user.OrganizationID, sessionID)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, renderState(state))
}

// Delete removes a session. The dashboard's confirmation dialog materializes
// here as a required confirm=true query parameter.
func (h *SessionHandler) Delete(c echo.Context) error {
	user, sessionID, err := h.scope(c)
	if err != nil {
		return err
	}

	if c.QueryParam("confirm") != "true" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Deletion must be confirmed with confirm=true",
			"code":  "CONFIRMATION_REQUIRED",
		})
	}

	if err := h.sessions.Delete(c.Request().Context(), user.OrganizationID, sessionID); err != nil {
		return h.fail(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *SessionHandler) ConfigureWebhook(c echo.Context) error {
	user, sessionID, err := h.scope(c)
	if err != nil {
		return err
	}

	var req usecase.WebhookConfigRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}

	session, err := h.sessions.ConfigureWebhook(c.Request().Context(), user.OrganizationID, sessionID, req)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) SendText(c echo.Context) error {
	user, sessionID, err := h.scope(c)
	if err != nil {
		return err
	}

	var req usecase.SendTextRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}

	messageID, err := h.sessions.SendText(c.Request().Context(), user.OrganizationID, sessionID, req)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message_id": messageID})
}

func (h *SessionHandler) SendMedia(c echo.Context) error {
	user, sessionID, err := h.scope(c)
	if err != nil {
		return err
	}

	var req usecase.SendMediaRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}

	messageID, err := h.sessions.SendMedia(c.Request().Context(), user.OrganizationID, sessionID, req)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message_id": messageID})
}

// scope extracts the authenticated user and the :id path parameter.
func (h *SessionHandler) scope(c echo.Context) (*auth.AuthUser, uuid.UUID, error) {
	user, err := auth.GetUserFromContext(c)
	if err != nil {
		return nil, uuid.Nil, c.JSON(http.StatusUnauthorized, echo.Map{"error": "Authentication required"})
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, uuid.Nil, c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid session id"})
	}

	return user, sessionID, nil
}

// fail maps domain errors to HTTP responses. The raw error text is surfaced;
// the dashboard shows it in a toast as-is.
func (h *SessionHandler) fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domainErrors.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error(), "code": "SESSION_NOT_FOUND"})
	case errors.Is(err, domainErrors.ErrSubscriptionRequired):
		return c.JSON(http.StatusPaymentRequired, echo.Map{
			"error":    err.Error(),
			"code":     "SUBSCRIPTION_REQUIRED",
			"redirect": "/billing/checkout",
		})
	case errors.Is(err, domainErrors.ErrPaymentPending):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "code": "PAYMENT_PENDING"})
	case errors.Is(err, domainErrors.ErrSessionLimitReached):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "code": "SESSION_LIMIT_REACHED"})
	case errors.Is(err, domainErrors.ErrSessionNotProvisioned):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "code": "SESSION_NOT_PROVISIONED"})
	case errors.Is(err, domainErrors.ErrQRUnavailable):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": err.Error(), "code": "QR_UNAVAILABLE"})
	default:
		h.logger.Error("session request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
}
