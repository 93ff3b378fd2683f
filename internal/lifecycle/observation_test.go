package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/marioschiavon/uplink/internal/config"
	"github.com/marioschiavon/uplink/internal/domain/model"
	"github.com/marioschiavon/uplink/internal/domain/repository"
	"github.com/marioschiavon/uplink/internal/infrastructure/gateway"
)

// stubSessionRepo satisfies SessionRepository with no-ops; observation tests
// only care about in-memory state transitions.
type stubSessionRepo struct{}

func (stubSessionRepo) GetByID(context.Context, uuid.UUID) (*model.Session, error) { return nil, nil }
func (stubSessionRepo) GetByInstanceName(context.Context, string) (*model.Session, error) {
	return nil, nil
}
func (stubSessionRepo) ListByOrganization(context.Context, uuid.UUID) ([]model.Session, error) {
	return nil, nil
}
func (stubSessionRepo) ListProvisioned(context.Context) ([]model.Session, error) { return nil, nil }
func (stubSessionRepo) MostRecentForOrganization(context.Context, uuid.UUID) (*model.Session, error) {
	return nil, nil
}
func (stubSessionRepo) CountByOrganization(context.Context, uuid.UUID) (int64, error) {
	return 0, nil
}
func (stubSessionRepo) Create(context.Context, *model.Session) error { return nil }
func (stubSessionRepo) UpdateFields(context.Context, uuid.UUID, map[string]interface{}) error {
	return nil
}
func (stubSessionRepo) ClearGatewayCredentials(context.Context, uuid.UUID) error { return nil }
func (stubSessionRepo) Delete(context.Context, uuid.UUID) error                  { return nil }

var _ repository.SessionRepository = stubSessionRepo{}

func observationManager() *Manager {
	return NewManager(nil, stubSessionRepo{}, config.LifecycleConfig{}, zap.NewNop())
}

func taskInState(state State) *task {
	return &task{
		sessionID:    uuid.New(),
		instanceName: "instance",
		token:        "token",
		state:        state,
		cancel:       func() {},
	}
}

func TestApplyObservation(t *testing.T) {
	ctx := context.Background()

	t.Run("connected always wins", func(t *testing.T) {
		for _, start := range []Phase{PhaseNoSession, PhasePendingStart, PhaseAwaitingQR, PhaseDisconnected} {
			m := observationManager()
			tk := taskInState(State{Phase: start, QRCode: "QR"})

			m.applyObservation(ctx, tk, gateway.ConnectionSnapshot{Connected: true, Message: gateway.MessageConnected})

			assert.Equal(t, PhaseConnected, tk.state.Phase, "from phase %s", start)
		}
	})

	t.Run("disconnected is ignored while qr is held", func(t *testing.T) {
		m := observationManager()
		tk := taskInState(State{Phase: PhaseAwaitingQR, QRCode: "QR", ExpiresAt: time.Now().Add(time.Minute)})

		m.applyObservation(ctx, tk, gateway.ConnectionSnapshot{Connected: false, Message: gateway.MessageDisconnected})

		assert.Equal(t, PhaseAwaitingQR, tk.state.Phase)
		assert.Equal(t, "QR", tk.state.QRCode)
	})

	t.Run("disconnected is ignored during pending start", func(t *testing.T) {
		m := observationManager()
		tk := taskInState(State{Phase: PhasePendingStart})

		m.applyObservation(ctx, tk, gateway.ConnectionSnapshot{Connected: false, Message: gateway.MessageDisconnected})

		assert.Equal(t, PhasePendingStart, tk.state.Phase)
	})

	t.Run("connected session drops on disconnected observation", func(t *testing.T) {
		m := observationManager()
		tk := taskInState(State{Phase: PhaseConnected})

		m.applyObservation(ctx, tk, gateway.ConnectionSnapshot{Connected: false, Message: gateway.MessageOffline})

		assert.Equal(t, PhaseDisconnected, tk.state.Phase)
		assert.Equal(t, "gateway offline", tk.state.Reason)
	})

	t.Run("repeated connected refreshes observation time only", func(t *testing.T) {
		m := observationManager()
		old := time.Now().Add(-time.Minute)
		tk := taskInState(State{Phase: PhaseConnected, ObservedAt: old})

		m.applyObservation(ctx, tk, gateway.ConnectionSnapshot{Connected: true, Message: gateway.MessageConnected})

		assert.Equal(t, PhaseConnected, tk.state.Phase)
		assert.True(t, tk.state.ObservedAt.After(old))
	})
}

func TestInstanceNameFor(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	tests := []struct {
		name     string
		expected string
	}{
		{"Support Line", "support-line-6ba7b810"},
		{"Vendas (SP) #2", "vendas-sp-2-6ba7b810"},
		{"---", "session-6ba7b810"},
		{"日本語", "session-6ba7b810"},
	}

	for _, tt := range tests {
		got := instanceNameFor(&model.Session{ID: id, Name: tt.name})
		assert.Equal(t, tt.expected, got)
	}
}

func TestStateFromStored(t *testing.T) {
	connected := stateFromStored(&model.Session{Status: model.SessionStatusConnected})
	assert.Equal(t, PhaseConnected, connected.Phase)

	// Stored QR codes are stale after a restart.
	qr := stateFromStored(&model.Session{Status: model.SessionStatusQRCode, QRCode: "old"})
	assert.Equal(t, PhaseDisconnected, qr.Phase)
	assert.Empty(t, qr.QRCode)
}
