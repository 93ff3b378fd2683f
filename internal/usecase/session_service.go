package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/marioschiavon/uplink/internal/domain/errors"
	"github.com/marioschiavon/uplink/internal/domain/model"
	"github.com/marioschiavon/uplink/internal/domain/repository"
	"github.com/marioschiavon/uplink/internal/infrastructure/gateway"
	"github.com/marioschiavon/uplink/internal/lifecycle"
)

// LifecycleController is the slice of the lifecycle manager the session
// service drives.
type LifecycleController interface {
	StartSession(ctx context.Context, session *model.Session) (lifecycle.State, error)
	RefreshQR(ctx context.Context, session *model.Session) (lifecycle.State, error)
	CloseSession(ctx context.Context, session *model.Session) (lifecycle.State, error)
	Teardown(ctx context.Context, session *model.Session) error
	SessionState(sessionID uuid.UUID) (lifecycle.State, bool)
	Track(session *model.Session)
	Untrack(sessionID uuid.UUID)
}

// MessageSender is the slice of the gateway client used for message relay and
// webhook configuration.
type MessageSender interface {
	SendText(ctx context.Context, instanceName, token, number, text string) (string, error)
	SendMedia(ctx context.Context, instanceName, token string, msg gateway.MediaMessage) (string, error)
	SetWebhook(ctx context.Context, instanceName, token, url string, events []string) error
}

// SessionService owns session CRUD and the imperative lifecycle actions,
// enforcing the subscription gate and tenant scoping in front of the manager.
type SessionService struct {
	sessions repository.SessionRepository
	orgs     repository.OrganizationRepository
	subs     repository.SubscriptionRepository
	manager  LifecycleController
	gw       MessageSender
	validate *validator.Validate
	// callbackBaseURL is this service's public origin; the gateway posts
	// instance events to {callbackBaseURL}/webhook/gateway/{instance}.
	callbackBaseURL string
	logger          *zap.Logger
}

// NewSessionService creates a session service.
func NewSessionService(
	sessions repository.SessionRepository,
	orgs repository.OrganizationRepository,
	subs repository.SubscriptionRepository,
	manager LifecycleController,
	gw MessageSender,
	callbackBaseURL string,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		sessions:        sessions,
		orgs:            orgs,
		subs:            subs,
		manager:         manager,
		gw:              gw,
		validate:        validator.New(),
		callbackBaseURL: strings.TrimRight(callbackBaseURL, "/"),
		logger:          logger,
	}
}

// CreateSessionRequest is the payload for creating a session.
type CreateSessionRequest struct {
	Name string `json:"name" validate:"required,min=3,max=100"`
}

// WebhookConfigRequest configures client webhook forwarding for a session.
// Only HTTPS targets are accepted.
type WebhookConfigRequest struct {
	URL     string   `json:"url" validate:"omitempty,url,startswith=https://"`
	Enabled bool     `json:"enabled"`
	Events  []string `json:"events" validate:"dive,min=1"`
}

// List returns the organization's sessions.
func (s *SessionService) List(ctx context.Context, orgID uuid.UUID) ([]model.Session, error) {
	return s.sessions.ListByOrganization(ctx, orgID)
}

// Get returns one session, scoped to the organization.
func (s *SessionService) Get(ctx context.Context, orgID, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.OrganizationID != orgID {
		return nil, domainErrors.ErrSessionNotFound
	}
	return session, nil
}

// Create adds a session for the organization, honoring its session limit.
// Sessions of legacy-billing tenants never require a subscription.
func (s *SessionService) Create(ctx context.Context, orgID uuid.UUID, req CreateSessionRequest) (*model.Session, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}

	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, fmt.Errorf("organization %s not found", orgID)
	}

	count, err := s.sessions.CountByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if count >= int64(org.MaxSessions) {
		return nil, domainErrors.ErrSessionLimitReached
	}

	session := &model.Session{
		OrganizationID:       orgID,
		Name:                 strings.TrimSpace(req.Name),
		Status:               model.SessionStatusDisconnected,
		RequiresSubscription: !org.LegacyBilling,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("session created",
		zap.String("session_id", session.ID.String()),
		zap.String("organization_id", orgID.String()),
		zap.Bool("requires_subscription", session.RequiresSubscription))
	return session, nil
}

// Start drives the session toward the QR-display state. Sessions that require
// a subscription without an active one are rejected; the handler turns that
// into a checkout redirect.
func (s *SessionService) Start(ctx context.Context, orgID, sessionID uuid.UUID) (lifecycle.State, error) {
	session, err := s.Get(ctx, orgID, sessionID)
	if err != nil {
		return lifecycle.State{}, err
	}

	if session.Status == model.SessionStatusPendingPayment {
		return lifecycle.State{}, domainErrors.ErrSubscriptionRequired
	}

	if session.RequiresSubscription {
		active, err := s.subs.HasWithStatus(ctx, session.ID, model.SubscriptionStatusActive)
		if err != nil {
			return lifecycle.State{}, err
		}
		if !active {
			return lifecycle.State{}, domainErrors.ErrSubscriptionRequired
		}
	}

	return s.manager.StartSession(ctx, session)
}

// RefreshQR regenerates the QR code and restarts its countdown.
func (s *SessionService) RefreshQR(ctx context.Context, orgID, sessionID uuid.UUID) (lifecycle.State, error) {
	session, err := s.Get(ctx, orgID, sessionID)
	if err != nil {
		return lifecycle.State{}, err
	}
	return s.manager.RefreshQR(ctx, session)
}

// Close gracefully disconnects the session, keeping its credentials.
func (s *SessionService) Close(ctx context.Context, orgID, sessionID uuid.UUID) (lifecycle.State, error) {
	session, err := s.Get(ctx, orgID, sessionID)
	if err != nil {
		return lifecycle.State{}, err
	}
	return s.manager.CloseSession(ctx, session)
}

// Delete removes the session from the gateway and locally. It is rejected
// while a payment is pending for the session; gateway failures during
// teardown do not block the local deletion.
func (s *SessionService) Delete(ctx context.Context, orgID, sessionID uuid.UUID) error {
	session, err := s.Get(ctx, orgID, sessionID)
	if err != nil {
		return err
	}

	if session.Status == model.SessionStatusPendingPayment {
		return domainErrors.ErrPaymentPending
	}

	pending, err := s.subs.HasWithStatus(ctx, session.ID, model.SubscriptionStatusPending)
	if err != nil {
		return err
	}
	if pending {
		return domainErrors.ErrPaymentPending
	}

	return s.manager.Teardown(ctx, session)
}

// State returns the live lifecycle state when tracked, falling back to the
// stored status for idle sessions.
func (s *SessionService) State(ctx context.Context, orgID, sessionID uuid.UUID) (lifecycle.State, error) {
	session, err := s.Get(ctx, orgID, sessionID)
	if err != nil {
		return lifecycle.State{}, err
	}

	if state, ok := s.manager.SessionState(session.ID); ok {
		return state, nil
	}

	switch session.Status {
	case model.SessionStatusConnected:
		return lifecycle.State{Phase: lifecycle.PhaseConnected}, nil
	case model.SessionStatusQRCode:
		return lifecycle.State{Phase: lifecycle.PhaseAwaitingQR, QRCode: session.QRCode, PairingCode: session.PairingCode}, nil
	default:
		if !session.HasGatewayCredentials() {
			return lifecycle.State{Phase: lifecycle.PhaseNoSession}, nil
		}
		return lifecycle.State{Phase: lifecycle.PhaseDisconnected}, nil
	}
}

// ConfigureWebhook stores the client forwarding settings and points the
// gateway's event webhook at this service's callback endpoint. The gateway
// call is best-effort; the stored settings win.
func (s *SessionService) ConfigureWebhook(ctx context.Context, orgID, sessionID uuid.UUID, req WebhookConfigRequest) (*model.Session, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}
	if req.Enabled && req.URL == "" {
		return nil, errors.New("webhook url is required when forwarding is enabled")
	}

	session, err := s.Get(ctx, orgID, sessionID)
	if err != nil {
		return nil, err
	}

	err = s.sessions.UpdateFields(ctx, session.ID, map[string]interface{}{
		"webhook_url":     req.URL,
		"webhook_enabled": req.Enabled,
		"webhook_events":  model.StringSlice(req.Events),
	})
	if err != nil {
		return nil, err
	}

	if session.HasGatewayCredentials() {
		callback := ""
		if req.Enabled {
			callback = fmt.Sprintf("%s/webhook/gateway/%s", s.callbackBaseURL, session.InstanceName)
		}
		if err := s.gw.SetWebhook(ctx, session.InstanceName, session.APIToken, callback, req.Events); err != nil {
			s.logger.Warn("gateway webhook configuration failed",
				zap.String("session_id", session.ID.String()),
				zap.Error(err))
		}
	}

	return s.Get(ctx, orgID, sessionID)
}

// SendTextRequest is the payload for the text relay endpoint.
type SendTextRequest struct {
	Number string `json:"number" validate:"required,min=8"`
	Text   string `json:"text" validate:"required"`
}

// SendText relays a text message through the session's instance.
func (s *SessionService) SendText(ctx context.Context, orgID, sessionID uuid.UUID, req SendTextRequest) (string, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", fmt.Errorf("invalid message: %w", err)
	}

	session, err := s.Get(ctx, orgID, sessionID)
	if err != nil {
		return "", err
	}
	if !session.HasGatewayCredentials() {
		return "", domainErrors.ErrSessionNotProvisioned
	}

	return s.gw.SendText(ctx, session.InstanceName, session.APIToken, req.Number, req.Text)
}

// SendMediaRequest is the payload for the media relay endpoint.
type SendMediaRequest struct {
	Number    string `json:"number" validate:"required,min=8"`
	MediaType string `json:"mediatype" validate:"required,oneof=image video audio document"`
	MimeType  string `json:"mimetype"`
	Caption   string `json:"caption"`
	Media     string `json:"media" validate:"required"`
	FileName  string `json:"file_name"`
}

// SendMedia relays a media message through the session's instance.
func (s *SessionService) SendMedia(ctx context.Context, orgID, sessionID uuid.UUID, req SendMediaRequest) (string, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", fmt.Errorf("invalid message: %w", err)
	}

	session, err := s.Get(ctx, orgID, sessionID)
	if err != nil {
		return "", err
	}
	if !session.HasGatewayCredentials() {
		return "", domainErrors.ErrSessionNotProvisioned
	}

	return s.gw.SendMedia(ctx, session.InstanceName, session.APIToken, gateway.MediaMessage{
		Number:    req.Number,
		MediaType: req.MediaType,
		MimeType:  req.MimeType,
		Caption:   req.Caption,
		Media:     req.Media,
		FileName:  req.FileName,
	})
}
