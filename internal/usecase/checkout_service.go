package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	portalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"go.uber.org/zap"

	domainErrors "github.com/marioschiavon/uplink/internal/domain/errors"
	"github.com/marioschiavon/uplink/internal/domain/model"
	"github.com/marioschiavon/uplink/internal/domain/repository"
)

// CheckoutService starts Stripe checkout flows for session subscriptions.
type CheckoutService struct {
	sessions  repository.SessionRepository
	subs      repository.SubscriptionRepository
	plans     repository.PlanRepository
	clientURL string
	logger    *zap.Logger
}

// NewCheckoutService creates a checkout service. Stripe's global key must be
// set by the caller before use.
func NewCheckoutService(
	sessions repository.SessionRepository,
	subs repository.SubscriptionRepository,
	plans repository.PlanRepository,
	clientURL string,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		sessions:  sessions,
		subs:      subs,
		plans:     plans,
		clientURL: clientURL,
		logger:    logger,
	}
}

// CheckoutIntent is the handle the dashboard needs to redirect to payment.
type CheckoutIntent struct {
	CheckoutID string `json:"checkout_id"`
	URL        string `json:"url"`
}

// CreateCheckout opens a Stripe subscription checkout for a session, records
// a pending subscription and parks the session in pending_payment. The
// session and organization ids travel in the checkout metadata so the webhook
// can find their rows later.
func (s *CheckoutService) CreateCheckout(ctx context.Context, orgID, sessionID uuid.UUID, priceID, email string) (*CheckoutIntent, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.OrganizationID != orgID {
		return nil, domainErrors.ErrSessionNotFound
	}

	plan, err := s.plans.GetByPriceID(ctx, priceID)
	if err != nil {
		return nil, err
	}
	if plan == nil || !plan.Active {
		return nil, fmt.Errorf("unknown or inactive plan price %s", priceID)
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(s.clientURL + "/billing/success?checkout_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(s.clientURL + "/billing/cancelled"),
		CustomerEmail:     stripe.String(email),
		ClientReferenceID: stripe.String(session.ID.String()),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"session_id": session.ID.String(),
				"org_id":     orgID.String(),
			},
		},
	}
	params.AddMetadata("session_id", session.ID.String())
	params.AddMetadata("org_id", orgID.String())

	cs, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	// A re-entered checkout reuses the session's pending row so abandoned
	// attempts do not pile up.
	sub, err := s.subs.GetBySessionID(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if sub != nil && sub.Status == model.SubscriptionStatusPending {
		sub.Amount = plan.Amount
		sub.Currency = plan.Currency
		if err := s.subs.Update(ctx, sub); err != nil {
			return nil, err
		}
	} else {
		sub = &model.Subscription{
			OrganizationID: orgID,
			SessionID:      &session.ID,
			Provider:       model.ProviderStripe,
			Status:         model.SubscriptionStatusPending,
			Amount:         plan.Amount,
			Currency:       plan.Currency,
		}
		if err := s.subs.Create(ctx, sub); err != nil {
			return nil, err
		}
	}

	err = s.sessions.UpdateFields(ctx, session.ID, map[string]interface{}{
		"status": model.SessionStatusPendingPayment,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("checkout started",
		zap.String("session_id", session.ID.String()),
		zap.String("price_id", priceID),
		zap.String("checkout_id", cs.ID))

	return &CheckoutIntent{CheckoutID: cs.ID, URL: cs.URL}, nil
}

// CreatePortal opens the Stripe billing portal for a customer.
func (s *CheckoutService) CreatePortal(ctx context.Context, orgID uuid.UUID, sessionID uuid.UUID) (string, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session == nil || session.OrganizationID != orgID {
		return "", domainErrors.ErrSessionNotFound
	}

	sub, err := s.subs.GetBySessionID(ctx, session.ID)
	if err != nil {
		return "", err
	}
	if sub == nil || sub.CustomerID == "" {
		return "", domainErrors.ErrSubscriptionNotFound
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(sub.CustomerID),
		ReturnURL: stripe.String(s.clientURL),
	}

	ps, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return ps.URL, nil
}
