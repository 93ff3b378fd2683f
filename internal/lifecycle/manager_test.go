package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marioschiavon/uplink/internal/config"
	"github.com/marioschiavon/uplink/internal/domain/model"
	"github.com/marioschiavon/uplink/internal/infrastructure/gateway"
	"github.com/marioschiavon/uplink/internal/lifecycle"
)

// MockGateway is a mock implementation of the lifecycle.GatewayAPI interface
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CheckConnection(ctx context.Context, instanceName, token string) gateway.ConnectionSnapshot {
	args := m.Called(ctx, instanceName, token)
	return args.Get(0).(gateway.ConnectionSnapshot)
}

func (m *MockGateway) Connect(ctx context.Context, instanceName, token string) (*gateway.QRPayload, error) {
	args := m.Called(ctx, instanceName, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.QRPayload), args.Error(1)
}

func (m *MockGateway) Logout(ctx context.Context, instanceName, token string) error {
	args := m.Called(ctx, instanceName, token)
	return args.Error(0)
}

func (m *MockGateway) DeleteInstance(ctx context.Context, instanceName, token string) error {
	args := m.Called(ctx, instanceName, token)
	return args.Error(0)
}

func (m *MockGateway) CreateInstance(ctx context.Context, instanceName string) (*gateway.InstanceCredentials, error) {
	args := m.Called(ctx, instanceName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.InstanceCredentials), args.Error(1)
}

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockSessionRepository) GetByInstanceName(ctx context.Context, instanceName string) (*model.Session, error) {
	args := m.Called(ctx, instanceName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockSessionRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]model.Session, error) {
	args := m.Called(ctx, orgID)
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *MockSessionRepository) ListProvisioned(ctx context.Context) ([]model.Session, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *MockSessionRepository) MostRecentForOrganization(ctx context.Context, orgID uuid.UUID) (*model.Session, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockSessionRepository) CountByOrganization(ctx context.Context, orgID uuid.UUID) (int64, error) {
	args := m.Called(ctx, orgID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSessionRepository) Create(ctx context.Context, session *model.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	args := m.Called(ctx, id, fields)
	return args.Error(0)
}

func (m *MockSessionRepository) ClearGatewayCredentials(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// quietConfig keeps the background pollers out of the way so tests only see
// the calls they drive themselves.
func quietConfig() config.LifecycleConfig {
	return config.LifecycleConfig{
		StatusPollInterval: time.Hour,
		QRPollInterval:     time.Hour,
		QRTTL:              time.Hour,
		ConnectRetryDelay:  5 * time.Millisecond,
		ForwardTimeout:     time.Second,
	}
}

func startedManager(t *testing.T, gw *MockGateway, repo *MockSessionRepository, cfg config.LifecycleConfig) *lifecycle.Manager {
	t.Helper()

	repo.On("ListProvisioned", mock.Anything).Return([]model.Session{}, nil)

	mgr := lifecycle.NewManager(gw, repo, cfg, zap.NewNop())
	require.NoError(t, mgr.Start(context.Background()))
	t.Cleanup(mgr.Stop)
	return mgr
}

func provisionedSession() *model.Session {
	return &model.Session{
		ID:           uuid.New(),
		Name:         "Support Line",
		InstanceName: "support-line-abc12345",
		APIToken:     "inst-token",
	}
}

func TestManager_StartSession(t *testing.T) {
	ctx := context.Background()

	t.Run("provisions instance on first start", func(t *testing.T) {
		gw := new(MockGateway)
		repo := new(MockSessionRepository)
		mgr := startedManager(t, gw, repo, quietConfig())

		session := &model.Session{ID: uuid.New(), Name: "Support Line"}

		gw.On("CreateInstance", mock.Anything, mock.MatchedBy(func(name string) bool {
			return name != ""
		})).Return(&gateway.InstanceCredentials{
			InstanceName: "support-line-" + session.ID.String()[:8],
			Token:        "new-token",
		}, nil)
		gw.On("Connect", mock.Anything, mock.Anything, "new-token").
			Return(&gateway.QRPayload{Base64: "data:image/png;base64,QR1", PairingCode: "ABCD-1234"}, nil)
		repo.On("UpdateFields", mock.Anything, session.ID, mock.Anything).Return(nil)

		state, err := mgr.StartSession(ctx, session)

		require.NoError(t, err)
		assert.Equal(t, lifecycle.PhaseAwaitingQR, state.Phase)
		assert.Equal(t, "data:image/png;base64,QR1", state.QRCode)
		assert.Equal(t, "ABCD-1234", state.PairingCode)
		assert.False(t, state.ExpiresAt.IsZero())
		assert.Equal(t, "new-token", session.APIToken)

		gw.AssertExpectations(t)
	})

	t.Run("retries connect once when first attempt has no qr", func(t *testing.T) {
		gw := new(MockGateway)
		repo := new(MockSessionRepository)
		mgr := startedManager(t, gw, repo, quietConfig())

		session := provisionedSession()

		gw.On("Connect", mock.Anything, session.InstanceName, session.APIToken).
			Return(&gateway.QRPayload{}, nil).Once()
		gw.On("Connect", mock.Anything, session.InstanceName, session.APIToken).
			Return(&gateway.QRPayload{Base64: "QR2"}, nil).Once()
		repo.On("UpdateFields", mock.Anything, session.ID, mock.Anything).Return(nil)

		state, err := mgr.StartSession(ctx, session)

		require.NoError(t, err)
		assert.Equal(t, lifecycle.PhaseAwaitingQR, state.Phase)
		assert.Equal(t, "QR2", state.QRCode)
		gw.AssertNumberOfCalls(t, "Connect", 2)
	})

	t.Run("reports connected when restored instance needs no qr", func(t *testing.T) {
		gw := new(MockGateway)
		repo := new(MockSessionRepository)
		mgr := startedManager(t, gw, repo, quietConfig())

		session := provisionedSession()

		gw.On("Connect", mock.Anything, session.InstanceName, session.APIToken).
			Return(&gateway.QRPayload{}, nil)
		gw.On("CheckConnection", mock.Anything, session.InstanceName, session.APIToken).
			Return(gateway.ConnectionSnapshot{Connected: true, Message: gateway.MessageConnected})
		repo.On("UpdateFields", mock.Anything, session.ID, mock.Anything).Return(nil)

		state, err := mgr.StartSession(ctx, session)

		require.NoError(t, err)
		assert.Equal(t, lifecycle.PhaseConnected, state.Phase)
	})

	t.Run("fails with qr unavailable after exhausted retry", func(t *testing.T) {
		gw := new(MockGateway)
		repo := new(MockSessionRepository)
		mgr := startedManager(t, gw, repo, quietConfig())

		session := provisionedSession()

		gw.On("Connect", mock.Anything, session.InstanceName, session.APIToken).
			Return(&gateway.QRPayload{}, nil)
		gw.On("CheckConnection", mock.Anything, session.InstanceName, session.APIToken).
			Return(gateway.ConnectionSnapshot{Connected: false, Message: gateway.MessageDisconnected})
		repo.On("UpdateFields", mock.Anything, session.ID, mock.Anything).Return(nil)

		state, err := mgr.StartSession(ctx, session)

		require.Error(t, err)
		assert.Equal(t, lifecycle.PhaseDisconnected, state.Phase)
	})
}

func TestManager_QRExpiry(t *testing.T) {
	ctx := context.Background()

	t.Run("expiry marks session disconnected", func(t *testing.T) {
		gw := new(MockGateway)
		repo := new(MockSessionRepository)
		cfg := quietConfig()
		cfg.QRTTL = 30 * time.Millisecond
		mgr := startedManager(t, gw, repo, cfg)

		session := provisionedSession()

		gw.On("Connect", mock.Anything, session.InstanceName, session.APIToken).
			Return(&gateway.QRPayload{Base64: "QR"}, nil)
		gw.On("CheckConnection", mock.Anything, session.InstanceName, session.APIToken).
			Return(gateway.ConnectionSnapshot{Connected: false, Message: gateway.MessageQRCode})
		repo.On("UpdateFields", mock.Anything, session.ID, mock.Anything).Return(nil)

		state, err := mgr.StartSession(ctx, session)
		require.NoError(t, err)
		require.Equal(t, lifecycle.PhaseAwaitingQR, state.Phase)

		require.Eventually(t, func() bool {
			s, ok := mgr.SessionState(session.ID)
			return ok && s.Phase == lifecycle.PhaseDisconnected
		}, time.Second, 5*time.Millisecond)

		s, _ := mgr.SessionState(session.ID)
		assert.Equal(t, "qr code expired", s.Reason)
	})

	t.Run("live connection wins over expiry timer", func(t *testing.T) {
		gw := new(MockGateway)
		repo := new(MockSessionRepository)
		cfg := quietConfig()
		cfg.QRTTL = 30 * time.Millisecond
		mgr := startedManager(t, gw, repo, cfg)

		session := provisionedSession()

		gw.On("Connect", mock.Anything, session.InstanceName, session.APIToken).
			Return(&gateway.QRPayload{Base64: "QR"}, nil)
		// The phone scanned at the last moment: the expiry check sees a live
		// connection and must not expire the session.
		gw.On("CheckConnection", mock.Anything, session.InstanceName, session.APIToken).
			Return(gateway.ConnectionSnapshot{Connected: true, Message: gateway.MessageConnected})
		repo.On("UpdateFields", mock.Anything, session.ID, mock.Anything).Return(nil)

		state, err := mgr.StartSession(ctx, session)
		require.NoError(t, err)
		require.Equal(t, lifecycle.PhaseAwaitingQR, state.Phase)

		require.Eventually(t, func() bool {
			s, ok := mgr.SessionState(session.ID)
			return ok && s.Phase == lifecycle.PhaseConnected
		}, time.Second, 5*time.Millisecond)
	})
}

func TestManager_CloseSession(t *testing.T) {
	ctx := context.Background()

	t.Run("close survives gateway logout failure", func(t *testing.T) {
		gw := new(MockGateway)
		repo := new(MockSessionRepository)
		mgr := startedManager(t, gw, repo, quietConfig())

		session := provisionedSession()

		gw.On("Logout", mock.Anything, session.InstanceName, session.APIToken).
			Return(assert.AnError)
		repo.On("UpdateFields", mock.Anything, session.ID, mock.Anything).Return(nil)

		state, err := mgr.CloseSession(ctx, session)

		require.NoError(t, err)
		assert.Equal(t, lifecycle.PhaseDisconnected, state.Phase)
		assert.Equal(t, "closed by user", state.Reason)
	})

	t.Run("close keeps gateway credentials", func(t *testing.T) {
		gw := new(MockGateway)
		repo := new(MockSessionRepository)
		mgr := startedManager(t, gw, repo, quietConfig())

		session := provisionedSession()

		gw.On("Logout", mock.Anything, session.InstanceName, session.APIToken).Return(nil)
		repo.On("UpdateFields", mock.Anything, session.ID, mock.MatchedBy(func(fields map[string]interface{}) bool {
			_, touchesToken := fields["api_token"]
			return !touchesToken
		})).Return(nil)

		_, err := mgr.CloseSession(ctx, session)

		require.NoError(t, err)
		repo.AssertExpectations(t)
	})
}

func TestManager_Teardown(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes record even when gateway calls fail", func(t *testing.T) {
		gw := new(MockGateway)
		repo := new(MockSessionRepository)
		mgr := startedManager(t, gw, repo, quietConfig())

		session := provisionedSession()

		gw.On("Logout", mock.Anything, session.InstanceName, session.APIToken).
			Return(assert.AnError)
		gw.On("DeleteInstance", mock.Anything, session.InstanceName, session.APIToken).
			Return(assert.AnError)
		repo.On("Delete", mock.Anything, session.ID).Return(nil)

		err := mgr.Teardown(ctx, session)

		require.NoError(t, err)
		repo.AssertCalled(t, "Delete", mock.Anything, session.ID)

		_, tracked := mgr.SessionState(session.ID)
		assert.False(t, tracked)
	})

	t.Run("propagates database delete failure", func(t *testing.T) {
		gw := new(MockGateway)
		repo := new(MockSessionRepository)
		mgr := startedManager(t, gw, repo, quietConfig())

		session := provisionedSession()

		gw.On("Logout", mock.Anything, session.InstanceName, session.APIToken).Return(nil)
		gw.On("DeleteInstance", mock.Anything, session.InstanceName, session.APIToken).Return(nil)
		repo.On("Delete", mock.Anything, session.ID).Return(assert.AnError)

		err := mgr.Teardown(ctx, session)

		assert.Error(t, err)
	})
}

func TestManager_Tracking(t *testing.T) {
	t.Run("track ignores sessions without credentials", func(t *testing.T) {
		gw := new(MockGateway)
		repo := new(MockSessionRepository)
		mgr := startedManager(t, gw, repo, quietConfig())

		session := &model.Session{ID: uuid.New(), Name: "No Creds"}
		mgr.Track(session)

		_, tracked := mgr.SessionState(session.ID)
		assert.False(t, tracked)
		assert.Empty(t, mgr.Snapshot())
	})

	t.Run("snapshot reflects tracked sessions", func(t *testing.T) {
		gw := new(MockGateway)
		repo := new(MockSessionRepository)
		mgr := startedManager(t, gw, repo, quietConfig())

		session := provisionedSession()
		session.Status = model.SessionStatusConnected
		mgr.Track(session)

		snapshot := mgr.Snapshot()
		require.Len(t, snapshot, 1)
		assert.Equal(t, session.ID, snapshot[0].SessionID)
		assert.Equal(t, session.InstanceName, snapshot[0].InstanceName)
		assert.Equal(t, "connected", snapshot[0].Phase)
	})
}
