package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/marioschiavon/uplink/internal/domain/errors"
	"github.com/marioschiavon/uplink/internal/domain/model"
	"github.com/marioschiavon/uplink/internal/domain/repository"
)

// EventDeduper remembers processed webhook event ids. Providers redeliver
// events; reconciliation must run at most once per event.
type EventDeduper interface {
	// Seen marks the event processed and reports whether it already was.
	Seen(ctx context.Context, provider, eventID string) (bool, error)
}

// InstanceCloser is the slice of the gateway client the gate uses to tear
// down cancelled sessions.
type InstanceCloser interface {
	Logout(ctx context.Context, instanceName, token string) error
}

// Notifier sends billing emails. Failures never propagate into webhook
// handling.
type Notifier interface {
	SendPaymentFailed(ctx context.Context, to, sessionName string) error
	SendSubscriptionCancelled(ctx context.Context, to, sessionName string) error
}

// SubscriptionGate reconciles payment provider webhook events with session
// access control.
type SubscriptionGate struct {
	sessions repository.SessionRepository
	subs     repository.SubscriptionRepository
	orgs     repository.OrganizationRepository
	events   repository.WebhookEventRepository
	dedupe   EventDeduper
	gw       InstanceCloser
	manager  LifecycleController
	notifier Notifier
	logger   *zap.Logger
}

// NewSubscriptionGate creates a subscription gate.
func NewSubscriptionGate(
	sessions repository.SessionRepository,
	subs repository.SubscriptionRepository,
	orgs repository.OrganizationRepository,
	events repository.WebhookEventRepository,
	dedupe EventDeduper,
	gw InstanceCloser,
	manager LifecycleController,
	notifier Notifier,
	logger *zap.Logger,
) *SubscriptionGate {
	return &SubscriptionGate{
		sessions: sessions,
		subs:     subs,
		orgs:     orgs,
		events:   events,
		dedupe:   dedupe,
		gw:       gw,
		manager:  manager,
		notifier: notifier,
		logger:   logger,
	}
}

// Begin deduplicates and audit-logs an incoming event. ErrDuplicateEvent
// means the event was already processed and must be acked without action.
func (g *SubscriptionGate) Begin(ctx context.Context, provider model.PaymentProvider, eventID, eventType string, payload model.JSONB) error {
	seen, err := g.dedupe.Seen(ctx, string(provider), eventID)
	if err != nil {
		// A dedupe-store outage must not drop payment events; fall through to
		// the database unique index on event_id.
		g.logger.Warn("webhook dedupe store unavailable",
			zap.String("event_id", eventID),
			zap.Error(err))
	} else if seen {
		return domainErrors.ErrDuplicateEvent
	}

	err = g.events.Create(ctx, &model.WebhookEvent{
		Provider:  provider,
		EventID:   eventID,
		EventType: eventType,
		Payload:   payload,
	})
	if err != nil {
		// The audit table's unique index catches redeliveries the dedupe
		// store missed.
		if errors.Is(err, domainErrors.ErrDuplicateEvent) {
			return domainErrors.ErrDuplicateEvent
		}
		g.logger.Error("failed to record webhook event",
			zap.String("event_id", eventID),
			zap.Error(err))
	}
	return nil
}

// Fail records a reconciliation failure against the audit row. The webhook
// response is still a 200; operators follow up from the stored error.
func (g *SubscriptionGate) Fail(ctx context.Context, eventID string, cause error) {
	g.logger.Error("webhook reconciliation failed",
		zap.String("event_id", eventID),
		zap.Error(cause))
	if err := g.events.MarkError(ctx, eventID, cause.Error()); err != nil {
		g.logger.Error("failed to record reconciliation error",
			zap.String("event_id", eventID),
			zap.Error(err))
	}
}

// CheckoutCompleted carries the provider-agnostic outcome of a completed
// subscription checkout.
type CheckoutCompleted struct {
	Provider               model.PaymentProvider
	CustomerID             string
	ProviderSubscriptionID string
	// SessionID and OrganizationID come from checkout metadata / external
	// reference and may be stale.
	SessionID      string
	OrganizationID string
	Amount         decimal.Decimal
	Currency       string
	PeriodEnd      *time.Time
}

// HandleCheckoutCompleted activates the subscription and unlocks its session.
// When the referenced session row is gone, reconciliation falls back to the
// organization's most recent session to tolerate out-of-order delivery.
func (g *SubscriptionGate) HandleCheckoutCompleted(ctx context.Context, evt CheckoutCompleted) error {
	session, err := g.resolveSession(ctx, evt.SessionID, evt.OrganizationID)
	if err != nil {
		return err
	}

	sub, err := g.subs.GetBySessionID(ctx, session.ID)
	if err != nil {
		return err
	}

	now := time.Now()
	if sub == nil {
		sub = &model.Subscription{
			OrganizationID: session.OrganizationID,
			SessionID:      &session.ID,
			Provider:       evt.Provider,
		}
	}
	sub.CustomerID = evt.CustomerID
	sub.ProviderSubscriptionID = evt.ProviderSubscriptionID
	sub.Provider = evt.Provider
	sub.Status = model.SubscriptionStatusActive
	if !evt.Amount.IsZero() {
		sub.Amount = evt.Amount
	}
	if evt.Currency != "" {
		sub.Currency = evt.Currency
	}
	sub.CurrentPeriodEnd = evt.PeriodEnd
	sub.CancelAtPeriodEnd = false
	sub.UpdatedAt = now

	if sub.CreatedAt.IsZero() {
		err = g.subs.Create(ctx, sub)
	} else {
		err = g.subs.Update(ctx, sub)
	}
	if err != nil {
		return err
	}

	err = g.sessions.UpdateFields(ctx, session.ID, map[string]interface{}{
		"requires_subscription": false,
		"status":                model.SessionStatusConnected,
	})
	if err != nil {
		return err
	}

	g.logger.Info("subscription activated",
		zap.String("session_id", session.ID.String()),
		zap.String("provider_subscription_id", evt.ProviderSubscriptionID),
		zap.String("provider", string(evt.Provider)))
	return nil
}

// HandleCheckoutExpired releases a session parked behind an abandoned
// checkout: the pending subscription is cancelled and the session leaves
// pending_payment, so start and delete work again.
func (g *SubscriptionGate) HandleCheckoutExpired(ctx context.Context, sessionRef, orgRef string) error {
	session, err := g.resolveSession(ctx, sessionRef, orgRef)
	if err != nil {
		return err
	}

	sub, err := g.subs.GetBySessionID(ctx, session.ID)
	if err != nil {
		return err
	}
	if sub != nil && sub.Status == model.SubscriptionStatusPending {
		sub.Status = model.SubscriptionStatusCancelled
		sub.UpdatedAt = time.Now()
		if err := g.subs.Update(ctx, sub); err != nil {
			return err
		}
	}

	if session.Status == model.SessionStatusPendingPayment {
		err = g.sessions.UpdateFields(ctx, session.ID, map[string]interface{}{
			"status": model.SessionStatusDisconnected,
		})
		if err != nil {
			return err
		}
	}

	g.logger.Info("checkout expired, session released",
		zap.String("session_id", session.ID.String()))
	return nil
}

// SubscriptionUpdated carries a provider-side subscription change.
type SubscriptionUpdated struct {
	ProviderSubscriptionID string
	Status                 model.SubscriptionStatus
	CancelAtPeriodEnd      bool
	CurrentPeriodEnd       *time.Time
}

// HandleSubscriptionUpdated syncs status and period changes. A scheduled
// cancellation leaves the session usable until the period end.
func (g *SubscriptionGate) HandleSubscriptionUpdated(ctx context.Context, evt SubscriptionUpdated) error {
	sub, err := g.subs.GetByProviderSubscriptionID(ctx, evt.ProviderSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return domainErrors.ErrSubscriptionNotFound
	}

	sub.Status = evt.Status
	sub.CancelAtPeriodEnd = evt.CancelAtPeriodEnd
	if evt.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = evt.CurrentPeriodEnd
	}

	if err := g.subs.Update(ctx, sub); err != nil {
		return err
	}

	g.logger.Info("subscription updated",
		zap.String("provider_subscription_id", evt.ProviderSubscriptionID),
		zap.String("status", string(evt.Status)),
		zap.Bool("cancel_at_period_end", evt.CancelAtPeriodEnd))
	return nil
}

// HandleSubscriptionDeleted processes a hard cancel: the subscription is
// marked cancelled, the live gateway connection is torn down best-effort and
// every stored gateway credential is cleared so a lapsed subscriber cannot
// reconnect with retained state.
func (g *SubscriptionGate) HandleSubscriptionDeleted(ctx context.Context, providerSubscriptionID string) error {
	sub, err := g.subs.GetByProviderSubscriptionID(ctx, providerSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return domainErrors.ErrSubscriptionNotFound
	}

	sub.Status = model.SubscriptionStatusCancelled
	if err := g.subs.Update(ctx, sub); err != nil {
		return err
	}

	if sub.SessionID != nil {
		if err := g.lockOutSession(ctx, *sub.SessionID); err != nil {
			return err
		}
	}

	g.notifyCancelled(ctx, sub)

	g.logger.Info("subscription cancelled",
		zap.String("provider_subscription_id", providerSubscriptionID))
	return nil
}

// HandleInvoicePaymentFailed moves the subscription to past_due. The session
// is not torn down; the provider retries within its grace period.
func (g *SubscriptionGate) HandleInvoicePaymentFailed(ctx context.Context, providerSubscriptionID string) error {
	sub, err := g.subs.GetByProviderSubscriptionID(ctx, providerSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return domainErrors.ErrSubscriptionNotFound
	}

	sub.Status = model.SubscriptionStatusPastDue
	if err := g.subs.Update(ctx, sub); err != nil {
		return err
	}

	g.notifyPaymentFailed(ctx, sub)

	g.logger.Warn("subscription past due",
		zap.String("provider_subscription_id", providerSubscriptionID))
	return nil
}

// resolveSession finds the checkout's target session, falling back to the
// organization's most recent session when the direct reference is missing.
func (g *SubscriptionGate) resolveSession(ctx context.Context, sessionRef, orgRef string) (*model.Session, error) {
	if sessionRef != "" {
		if id, err := uuid.Parse(sessionRef); err == nil {
			session, err := g.sessions.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if session != nil {
				return session, nil
			}
		}
	}

	orgID, err := uuid.Parse(orgRef)
	if err != nil {
		return nil, domainErrors.ErrNoSessionForOrganization
	}

	session, err := g.sessions.MostRecentForOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domainErrors.ErrNoSessionForOrganization
	}

	g.logger.Warn("checkout session reference stale, using most recent session",
		zap.String("session_ref", sessionRef),
		zap.String("organization_id", orgRef),
		zap.String("resolved_session_id", session.ID.String()))
	return session, nil
}

// lockOutSession tears down and de-credentials a session after a hard cancel.
func (g *SubscriptionGate) lockOutSession(ctx context.Context, sessionID uuid.UUID) error {
	session, err := g.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	if session.HasGatewayCredentials() {
		if err := g.gw.Logout(ctx, session.InstanceName, session.APIToken); err != nil {
			g.logger.Warn("gateway logout failed during subscription teardown",
				zap.String("session_id", session.ID.String()),
				zap.Error(err))
		}
	}

	g.manager.Untrack(session.ID)

	if err := g.sessions.ClearGatewayCredentials(ctx, session.ID); err != nil {
		return err
	}
	return g.sessions.UpdateFields(ctx, session.ID, map[string]interface{}{
		"status":                model.SessionStatusDisconnected,
		"requires_subscription": true,
	})
}

func (g *SubscriptionGate) notifyCancelled(ctx context.Context, sub *model.Subscription) {
	to, sessionName := g.billingContact(ctx, sub)
	if to == "" {
		return
	}
	if err := g.notifier.SendSubscriptionCancelled(ctx, to, sessionName); err != nil {
		g.logger.Warn("cancellation email failed",
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(err))
	}
}

func (g *SubscriptionGate) notifyPaymentFailed(ctx context.Context, sub *model.Subscription) {
	to, sessionName := g.billingContact(ctx, sub)
	if to == "" {
		return
	}
	if err := g.notifier.SendPaymentFailed(ctx, to, sessionName); err != nil {
		g.logger.Warn("payment failure email failed",
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(err))
	}
}

func (g *SubscriptionGate) billingContact(ctx context.Context, sub *model.Subscription) (string, string) {
	org, err := g.orgs.GetByID(ctx, sub.OrganizationID)
	if err != nil || org == nil || org.BillingEmail == "" {
		return "", ""
	}

	sessionName := ""
	if sub.SessionID != nil {
		if session, err := g.sessions.GetByID(ctx, *sub.SessionID); err == nil && session != nil {
			sessionName = session.Name
		}
	}
	return org.BillingEmail, sessionName
}
