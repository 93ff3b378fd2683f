package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainErrors "github.com/marioschiavon/uplink/internal/domain/errors"
	"github.com/marioschiavon/uplink/internal/domain/model"
	"github.com/marioschiavon/uplink/internal/usecase"
)

// MockWebhookEventRepository is a mock implementation of WebhookEventRepository
type MockWebhookEventRepository struct {
	mock.Mock
}

func (m *MockWebhookEventRepository) Create(ctx context.Context, event *model.WebhookEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockWebhookEventRepository) MarkError(ctx context.Context, eventID string, processingError string) error {
	args := m.Called(ctx, eventID, processingError)
	return args.Error(0)
}

// MockEventDeduper is a mock implementation of EventDeduper
type MockEventDeduper struct {
	mock.Mock
}

func (m *MockEventDeduper) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	args := m.Called(ctx, provider, eventID)
	return args.Bool(0), args.Error(1)
}

// MockInstanceCloser is a mock implementation of InstanceCloser
type MockInstanceCloser struct {
	mock.Mock
}

func (m *MockInstanceCloser) Logout(ctx context.Context, instanceName, token string) error {
	args := m.Called(ctx, instanceName, token)
	return args.Error(0)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendPaymentFailed(ctx context.Context, to, sessionName string) error {
	args := m.Called(ctx, to, sessionName)
	return args.Error(0)
}

func (m *MockNotifier) SendSubscriptionCancelled(ctx context.Context, to, sessionName string) error {
	args := m.Called(ctx, to, sessionName)
	return args.Error(0)
}

type gateMocks struct {
	sessions *MockSessionRepository
	subs     *MockSubscriptionRepository
	orgs     *MockOrganizationRepository
	events   *MockWebhookEventRepository
	dedupe   *MockEventDeduper
	gw       *MockInstanceCloser
	manager  *MockLifecycleController
	notifier *MockNotifier
}

func newGate() (*usecase.SubscriptionGate, gateMocks) {
	m := gateMocks{
		sessions: new(MockSessionRepository),
		subs:     new(MockSubscriptionRepository),
		orgs:     new(MockOrganizationRepository),
		events:   new(MockWebhookEventRepository),
		dedupe:   new(MockEventDeduper),
		gw:       new(MockInstanceCloser),
		manager:  new(MockLifecycleController),
		notifier: new(MockNotifier),
	}
	gate := usecase.NewSubscriptionGate(
		m.sessions, m.subs, m.orgs, m.events,
		m.dedupe, m.gw, m.manager, m.notifier, zap.NewNop())
	return gate, m
}

func TestSubscriptionGate_Begin(t *testing.T) {
	ctx := context.Background()

	t.Run("records fresh event", func(t *testing.T) {
		gate, m := newGate()

		m.dedupe.On("Seen", ctx, "stripe", "evt_1").Return(false, nil)
		m.events.On("Create", ctx, mock.MatchedBy(func(e *model.WebhookEvent) bool {
			return e.EventID == "evt_1" && e.Provider == model.ProviderStripe
		})).Return(nil)

		err := gate.Begin(ctx, model.ProviderStripe, "evt_1", "checkout.session.completed", model.JSONB{})

		require.NoError(t, err)
		m.events.AssertExpectations(t)
	})

	t.Run("duplicate event short-circuits", func(t *testing.T) {
		gate, m := newGate()

		m.dedupe.On("Seen", ctx, "stripe", "evt_1").Return(true, nil)

		err := gate.Begin(ctx, model.ProviderStripe, "evt_1", "checkout.session.completed", model.JSONB{})

		assert.ErrorIs(t, err, domainErrors.ErrDuplicateEvent)
		m.events.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("dedupe outage falls through to the audit table", func(t *testing.T) {
		gate, m := newGate()

		m.dedupe.On("Seen", ctx, "stripe", "evt_1").Return(false, assert.AnError)
		m.events.On("Create", ctx, mock.Anything).Return(nil)

		err := gate.Begin(ctx, model.ProviderStripe, "evt_1", "checkout.session.completed", model.JSONB{})

		require.NoError(t, err)
		m.events.AssertCalled(t, "Create", ctx, mock.Anything)
	})

	t.Run("redelivery during dedupe outage is still a duplicate", func(t *testing.T) {
		gate, m := newGate()

		m.dedupe.On("Seen", ctx, "stripe", "evt_1").Return(false, assert.AnError)
		m.events.On("Create", ctx, mock.Anything).Return(domainErrors.ErrDuplicateEvent)

		err := gate.Begin(ctx, model.ProviderStripe, "evt_1", "checkout.session.completed", model.JSONB{})

		assert.ErrorIs(t, err, domainErrors.ErrDuplicateEvent)
	})

	t.Run("audit write failure does not drop the event", func(t *testing.T) {
		gate, m := newGate()

		m.dedupe.On("Seen", ctx, "stripe", "evt_1").Return(false, nil)
		m.events.On("Create", ctx, mock.Anything).Return(assert.AnError)

		err := gate.Begin(ctx, model.ProviderStripe, "evt_1", "checkout.session.completed", model.JSONB{})

		require.NoError(t, err)
	})
}

func TestSubscriptionGate_HandleCheckoutCompleted(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	t.Run("activates subscription and unlocks session", func(t *testing.T) {
		gate, m := newGate()

		session := &model.Session{ID: uuid.New(), OrganizationID: orgID, Status: model.SessionStatusPendingPayment}
		pending := &model.Subscription{
			ID:             uuid.New(),
			OrganizationID: orgID,
			SessionID:      &session.ID,
			Provider:       model.ProviderStripe,
			Status:         model.SubscriptionStatusPending,
			CreatedAt:      time.Now(),
		}

		m.sessions.On("GetByID", ctx, session.ID).Return(session, nil)
		m.subs.On("GetBySessionID", ctx, session.ID).Return(pending, nil)
		m.subs.On("Update", ctx, mock.MatchedBy(func(sub *model.Subscription) bool {
			return sub.Status == model.SubscriptionStatusActive &&
				sub.ProviderSubscriptionID == "sub_123" &&
				sub.CustomerID == "cus_123"
		})).Return(nil)
		m.sessions.On("UpdateFields", ctx, session.ID, mock.MatchedBy(func(fields map[string]interface{}) bool {
			return fields["requires_subscription"] == false
		})).Return(nil)

		err := gate.HandleCheckoutCompleted(ctx, usecase.CheckoutCompleted{
			Provider:               model.ProviderStripe,
			CustomerID:             "cus_123",
			ProviderSubscriptionID: "sub_123",
			SessionID:              session.ID.String(),
			OrganizationID:         orgID.String(),
			Amount:                 decimal.NewFromFloat(49.90),
			Currency:               "brl",
		})

		require.NoError(t, err)
		m.subs.AssertExpectations(t)
		m.sessions.AssertExpectations(t)
	})

	t.Run("stale session reference falls back to most recent session", func(t *testing.T) {
		gate, m := newGate()

		gone := uuid.New()
		current := &model.Session{ID: uuid.New(), OrganizationID: orgID}

		m.sessions.On("GetByID", ctx, gone).Return(nil, nil)
		m.sessions.On("MostRecentForOrganization", ctx, orgID).Return(current, nil)
		m.subs.On("GetBySessionID", ctx, current.ID).Return(nil, nil)
		m.subs.On("Create", ctx, mock.MatchedBy(func(sub *model.Subscription) bool {
			return sub.SessionID != nil && *sub.SessionID == current.ID &&
				sub.Status == model.SubscriptionStatusActive
		})).Return(nil)
		m.sessions.On("UpdateFields", ctx, current.ID, mock.Anything).Return(nil)

		err := gate.HandleCheckoutCompleted(ctx, usecase.CheckoutCompleted{
			Provider:               model.ProviderStripe,
			ProviderSubscriptionID: "sub_456",
			SessionID:              gone.String(),
			OrganizationID:         orgID.String(),
		})

		require.NoError(t, err)
		m.subs.AssertExpectations(t)
	})

	t.Run("fails when no session can be resolved", func(t *testing.T) {
		gate, m := newGate()

		m.sessions.On("MostRecentForOrganization", ctx, orgID).Return(nil, nil)

		err := gate.HandleCheckoutCompleted(ctx, usecase.CheckoutCompleted{
			Provider:       model.ProviderStripe,
			OrganizationID: orgID.String(),
		})

		assert.ErrorIs(t, err, domainErrors.ErrNoSessionForOrganization)
	})
}

func TestSubscriptionGate_HandleCheckoutExpired(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	t.Run("releases a session parked behind an abandoned checkout", func(t *testing.T) {
		gate, m := newGate()

		session := &model.Session{ID: uuid.New(), OrganizationID: orgID, Status: model.SessionStatusPendingPayment}
		pending := &model.Subscription{
			ID:             uuid.New(),
			OrganizationID: orgID,
			SessionID:      &session.ID,
			Provider:       model.ProviderStripe,
			Status:         model.SubscriptionStatusPending,
			CreatedAt:      time.Now(),
		}

		m.sessions.On("GetByID", ctx, session.ID).Return(session, nil)
		m.subs.On("GetBySessionID", ctx, session.ID).Return(pending, nil)
		m.subs.On("Update", ctx, mock.MatchedBy(func(sub *model.Subscription) bool {
			return sub.ID == pending.ID && sub.Status == model.SubscriptionStatusCancelled
		})).Return(nil)
		m.sessions.On("UpdateFields", ctx, session.ID, mock.MatchedBy(func(fields map[string]interface{}) bool {
			return fields["status"] == model.SessionStatusDisconnected
		})).Return(nil)

		err := gate.HandleCheckoutExpired(ctx, session.ID.String(), orgID.String())

		require.NoError(t, err)
		m.subs.AssertExpectations(t)
		m.sessions.AssertExpectations(t)
	})

	t.Run("leaves an already activated subscription alone", func(t *testing.T) {
		gate, m := newGate()

		session := &model.Session{ID: uuid.New(), OrganizationID: orgID, Status: model.SessionStatusConnected}
		active := &model.Subscription{
			ID:        uuid.New(),
			SessionID: &session.ID,
			Status:    model.SubscriptionStatusActive,
			CreatedAt: time.Now(),
		}

		m.sessions.On("GetByID", ctx, session.ID).Return(session, nil)
		m.subs.On("GetBySessionID", ctx, session.ID).Return(active, nil)

		err := gate.HandleCheckoutExpired(ctx, session.ID.String(), orgID.String())

		require.NoError(t, err)
		m.subs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		m.sessions.AssertNotCalled(t, "UpdateFields", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSubscriptionGate_HandleSubscriptionDeleted(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	t.Run("cancels, tears down and clears credentials", func(t *testing.T) {
		gate, m := newGate()

		session := &model.Session{
			ID:             uuid.New(),
			OrganizationID: orgID,
			Name:           "Support Line",
			InstanceName:   "inst",
			APIToken:       "tok",
			Status:         model.SessionStatusConnected,
		}
		sub := &model.Subscription{
			ID:                     uuid.New(),
			OrganizationID:         orgID,
			SessionID:              &session.ID,
			ProviderSubscriptionID: "sub_123",
			Status:                 model.SubscriptionStatusActive,
		}

		m.subs.On("GetByProviderSubscriptionID", ctx, "sub_123").Return(sub, nil)
		m.subs.On("Update", ctx, mock.MatchedBy(func(s *model.Subscription) bool {
			return s.Status == model.SubscriptionStatusCancelled
		})).Return(nil)
		m.sessions.On("GetByID", ctx, session.ID).Return(session, nil)
		m.gw.On("Logout", ctx, "inst", "tok").Return(nil)
		m.manager.On("Untrack", session.ID).Return()
		m.sessions.On("ClearGatewayCredentials", ctx, session.ID).Return(nil)
		m.sessions.On("UpdateFields", ctx, session.ID, mock.MatchedBy(func(fields map[string]interface{}) bool {
			return fields["requires_subscription"] == true &&
				fields["status"] == model.SessionStatusDisconnected
		})).Return(nil)
		m.orgs.On("GetByID", ctx, orgID).Return(&model.Organization{ID: orgID, BillingEmail: "billing@acme.test"}, nil)
		m.notifier.On("SendSubscriptionCancelled", ctx, "billing@acme.test", "Support Line").Return(nil)

		err := gate.HandleSubscriptionDeleted(ctx, "sub_123")

		require.NoError(t, err)
		m.sessions.AssertExpectations(t)
		m.manager.AssertCalled(t, "Untrack", session.ID)
		m.notifier.AssertExpectations(t)
	})

	t.Run("gateway logout failure does not block the lockout", func(t *testing.T) {
		gate, m := newGate()

		session := &model.Session{ID: uuid.New(), OrganizationID: orgID, InstanceName: "inst", APIToken: "tok"}
		sub := &model.Subscription{ID: uuid.New(), OrganizationID: orgID, SessionID: &session.ID, ProviderSubscriptionID: "sub_123"}

		m.subs.On("GetByProviderSubscriptionID", ctx, "sub_123").Return(sub, nil)
		m.subs.On("Update", ctx, mock.Anything).Return(nil)
		m.sessions.On("GetByID", ctx, session.ID).Return(session, nil)
		m.gw.On("Logout", ctx, "inst", "tok").Return(assert.AnError)
		m.manager.On("Untrack", session.ID).Return()
		m.sessions.On("ClearGatewayCredentials", ctx, session.ID).Return(nil)
		m.sessions.On("UpdateFields", ctx, session.ID, mock.Anything).Return(nil)
		m.orgs.On("GetByID", ctx, orgID).Return(nil, nil)

		err := gate.HandleSubscriptionDeleted(ctx, "sub_123")

		require.NoError(t, err)
		m.sessions.AssertCalled(t, "ClearGatewayCredentials", ctx, session.ID)
	})

	t.Run("unknown subscription is an error", func(t *testing.T) {
		gate, m := newGate()

		m.subs.On("GetByProviderSubscriptionID", ctx, "sub_999").Return(nil, nil)

		err := gate.HandleSubscriptionDeleted(ctx, "sub_999")

		assert.ErrorIs(t, err, domainErrors.ErrSubscriptionNotFound)
	})
}

func TestSubscriptionGate_HandleInvoicePaymentFailed(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	t.Run("marks past due without teardown", func(t *testing.T) {
		gate, m := newGate()

		session := &model.Session{ID: uuid.New(), OrganizationID: orgID, Name: "Support Line"}
		sub := &model.Subscription{
			ID:                     uuid.New(),
			OrganizationID:         orgID,
			SessionID:              &session.ID,
			ProviderSubscriptionID: "sub_123",
			Status:                 model.SubscriptionStatusActive,
		}

		m.subs.On("GetByProviderSubscriptionID", ctx, "sub_123").Return(sub, nil)
		m.subs.On("Update", ctx, mock.MatchedBy(func(s *model.Subscription) bool {
			return s.Status == model.SubscriptionStatusPastDue
		})).Return(nil)
		m.orgs.On("GetByID", ctx, orgID).Return(&model.Organization{ID: orgID, BillingEmail: "billing@acme.test"}, nil)
		m.sessions.On("GetByID", ctx, session.ID).Return(session, nil)
		m.notifier.On("SendPaymentFailed", ctx, "billing@acme.test", "Support Line").Return(nil)

		err := gate.HandleInvoicePaymentFailed(ctx, "sub_123")

		require.NoError(t, err)
		m.sessions.AssertNotCalled(t, "ClearGatewayCredentials", mock.Anything, mock.Anything)
		m.gw.AssertNotCalled(t, "Logout", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("email failure does not fail the event", func(t *testing.T) {
		gate, m := newGate()

		sub := &model.Subscription{ID: uuid.New(), OrganizationID: orgID, ProviderSubscriptionID: "sub_123"}

		m.subs.On("GetByProviderSubscriptionID", ctx, "sub_123").Return(sub, nil)
		m.subs.On("Update", ctx, mock.Anything).Return(nil)
		m.orgs.On("GetByID", ctx, orgID).Return(&model.Organization{ID: orgID, BillingEmail: "billing@acme.test"}, nil)
		m.notifier.On("SendPaymentFailed", ctx, "billing@acme.test", "").Return(assert.AnError)

		err := gate.HandleInvoicePaymentFailed(ctx, "sub_123")

		assert.NoError(t, err)
	})
}

func TestSubscriptionGate_HandleSubscriptionUpdated(t *testing.T) {
	ctx := context.Background()

	t.Run("scheduled cancel keeps subscription active", func(t *testing.T) {
		gate, m := newGate()

		sub := &model.Subscription{ID: uuid.New(), ProviderSubscriptionID: "sub_123", Status: model.SubscriptionStatusActive}
		periodEnd := time.Now().Add(30 * 24 * time.Hour)

		m.subs.On("GetByProviderSubscriptionID", ctx, "sub_123").Return(sub, nil)
		m.subs.On("Update", ctx, mock.MatchedBy(func(s *model.Subscription) bool {
			return s.Status == model.SubscriptionStatusActive && s.CancelAtPeriodEnd
		})).Return(nil)

		err := gate.HandleSubscriptionUpdated(ctx, usecase.SubscriptionUpdated{
			ProviderSubscriptionID: "sub_123",
			Status:                 model.SubscriptionStatusActive,
			CancelAtPeriodEnd:      true,
			CurrentPeriodEnd:       &periodEnd,
		})

		require.NoError(t, err)
		m.sessions.AssertNotCalled(t, "ClearGatewayCredentials", mock.Anything, mock.Anything)
	})
}
