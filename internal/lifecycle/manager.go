package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marioschiavon/uplink/internal/config"
	"github.com/marioschiavon/uplink/internal/domain/model"
	"github.com/marioschiavon/uplink/internal/domain/repository"
	"github.com/marioschiavon/uplink/internal/infrastructure/gateway"
)

// GatewayAPI is the slice of the gateway client the manager needs.
type GatewayAPI interface {
	CheckConnection(ctx context.Context, instanceName, token string) gateway.ConnectionSnapshot
	Connect(ctx context.Context, instanceName, token string) (*gateway.QRPayload, error)
	Logout(ctx context.Context, instanceName, token string) error
	DeleteInstance(ctx context.Context, instanceName, token string) error
	CreateInstance(ctx context.Context, instanceName string) (*gateway.InstanceCredentials, error)
}

// task is the scheduled work for one tracked session. Each task owns its
// polling goroutine; cancelling the task cancels everything it spawned.
type task struct {
	sessionID    uuid.UUID
	instanceName string
	token        string

	mu    sync.Mutex
	state State

	cancel context.CancelFunc
	// qrCancel stops the active QR watch, if any. Guarded by mu.
	qrCancel context.CancelFunc
}

// Manager drives the lifecycle of all tracked sessions. Tasks are keyed by
// session id so they can be cancelled individually on deletion instead of
// re-deriving the full session list every tick.
type Manager struct {
	gw       GatewayAPI
	sessions repository.SessionRepository
	cfg      config.LifecycleConfig
	logger   *zap.Logger

	mu    sync.Mutex
	tasks map[uuid.UUID]*task

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a lifecycle manager. Call Start before using it.
func NewManager(gw GatewayAPI, sessions repository.SessionRepository, cfg config.LifecycleConfig, logger *zap.Logger) *Manager {
	cfg.Defaults()
	return &Manager{
		gw:       gw,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
		tasks:    make(map[uuid.UUID]*task),
	}
}

// Start loads every provisioned session and begins polling it.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	provisioned, err := m.sessions.ListProvisioned(m.ctx)
	if err != nil {
		return fmt.Errorf("failed to load provisioned sessions: %w", err)
	}

	for i := range provisioned {
		m.Track(&provisioned[i])
	}

	m.logger.Info("lifecycle manager started",
		zap.Int("tracked_sessions", len(provisioned)),
		zap.Duration("status_poll_interval", m.cfg.StatusPollInterval))
	return nil
}

// Stop cancels every task and waits for their goroutines to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Track registers a session for background status polling. Tracking an
// already-tracked session refreshes its credentials.
func (m *Manager) Track(session *model.Session) {
	if !session.HasGatewayCredentials() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.tasks[session.ID]; ok {
		existing.mu.Lock()
		existing.instanceName = session.InstanceName
		existing.token = session.APIToken
		existing.mu.Unlock()
		return
	}

	taskCtx, cancel := context.WithCancel(m.rootCtx())
	t := &task{
		sessionID:    session.ID,
		instanceName: session.InstanceName,
		token:        session.APIToken,
		state:        stateFromStored(session),
		cancel:       cancel,
	}
	m.tasks[session.ID] = t

	m.wg.Add(1)
	go m.pollLoop(taskCtx, t)
}

// Untrack cancels and removes the task for a session.
func (m *Manager) Untrack(sessionID uuid.UUID) {
	m.mu.Lock()
	t, ok := m.tasks[sessionID]
	if ok {
		delete(m.tasks, sessionID)
	}
	m.mu.Unlock()

	if ok {
		t.mu.Lock()
		t.stopQRWatchLocked()
		t.mu.Unlock()
		t.cancel()
	}
}

// SessionState returns the in-memory state of a tracked session.
func (m *Manager) SessionState(sessionID uuid.UUID) (State, bool) {
	m.mu.Lock()
	t, ok := m.tasks[sessionID]
	m.mu.Unlock()
	if !ok {
		return State{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, true
}

// TaskSnapshot is one entry of the monitoring view.
type TaskSnapshot struct {
	SessionID    uuid.UUID `json:"session_id"`
	InstanceName string    `json:"instance_name"`
	Phase        string    `json:"phase"`
	Reason       string    `json:"reason,omitempty"`
	QRExpiresAt  time.Time `json:"qr_expires_at,omitempty"`
	ObservedAt   time.Time `json:"observed_at"`
}

// Snapshot returns the monitoring view over all tracked sessions.
func (m *Manager) Snapshot() []TaskSnapshot {
	m.mu.Lock()
	tasks := make([]*task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.mu.Unlock()

	out := make([]TaskSnapshot, 0, len(tasks))
	for _, t := range tasks {
		t.mu.Lock()
		out = append(out, TaskSnapshot{
			SessionID:    t.sessionID,
			InstanceName: t.instanceName,
			Phase:        t.state.Phase.String(),
			Reason:       t.state.Reason,
			QRExpiresAt:  t.state.ExpiresAt,
			ObservedAt:   t.state.ObservedAt,
		})
		t.mu.Unlock()
	}
	return out
}

func (m *Manager) rootCtx() context.Context {
	if m.ctx != nil {
		return m.ctx
	}
	return context.Background()
}

func (m *Manager) getTask(sessionID uuid.UUID) (*task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[sessionID]
	return t, ok
}

// pollLoop re-checks the gateway connection state on a fixed period until the
// task is cancelled.
func (m *Manager) pollLoop(ctx context.Context, t *task) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.StatusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			instance, token := t.instanceName, t.token
			t.mu.Unlock()

			snap := m.gw.CheckConnection(ctx, instance, token)
			m.applyObservation(ctx, t, snap)
		}
	}
}

// applyObservation folds a gateway observation into the task state. The
// update is monotonic: a connected observation always wins; a disconnected
// one is dropped while a QR code is held or a start is in flight, so a slow
// stale poll cannot clobber an in-progress pairing.
func (m *Manager) applyObservation(ctx context.Context, t *task, snap gateway.ConnectionSnapshot) {
	now := time.Now()

	t.mu.Lock()
	prev := t.state

	if snap.Connected {
		if prev.Phase == PhaseConnected {
			t.state.ObservedAt = now
			t.mu.Unlock()
			return
		}
		t.stopQRWatchLocked()
		t.state = State{Phase: PhaseConnected, ObservedAt: now}
		t.mu.Unlock()

		m.logger.Info("session connected",
			zap.String("session_id", t.sessionID.String()),
			zap.String("instance", t.instanceName),
			zap.String("previous_phase", prev.Phase.String()))
		m.persistConnected(ctx, t.sessionID)
		return
	}

	// Not connected.
	if prev.holdsQR() || prev.Phase == PhasePendingStart {
		t.mu.Unlock()
		return
	}

	if prev.Phase == PhaseConnected {
		t.state = State{
			Phase:      PhaseDisconnected,
			Reason:     reasonFromMessage(snap.Message),
			ObservedAt: now,
		}
		t.mu.Unlock()

		m.logger.Warn("session dropped",
			zap.String("session_id", t.sessionID.String()),
			zap.String("instance", t.instanceName),
			zap.String("gateway_message", snap.Message))
		m.persistDisconnected(ctx, t.sessionID)
		return
	}

	t.state.ObservedAt = now
	t.mu.Unlock()
}

// stopQRWatchLocked cancels the QR watch goroutine. Caller holds t.mu.
func (t *task) stopQRWatchLocked() {
	if t.qrCancel != nil {
		t.qrCancel()
		t.qrCancel = nil
	}
}

func reasonFromMessage(message string) string {
	switch message {
	case gateway.MessageOffline:
		return "gateway offline"
	case gateway.MessageQRCode:
		return "pairing restarted by gateway"
	default:
		return "disconnected by gateway"
	}
}

// persistConnected marks the session connected and drops the stored QR.
func (m *Manager) persistConnected(ctx context.Context, sessionID uuid.UUID) {
	err := m.sessions.UpdateFields(ctx, sessionID, map[string]interface{}{
		"status":       model.SessionStatusConnected,
		"qr_code":      "",
		"pairing_code": "",
	})
	if err != nil {
		m.logger.Error("failed to persist connected status",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
	}
}

func (m *Manager) persistDisconnected(ctx context.Context, sessionID uuid.UUID) {
	err := m.sessions.UpdateFields(ctx, sessionID, map[string]interface{}{
		"status":       model.SessionStatusDisconnected,
		"qr_code":      "",
		"pairing_code": "",
	})
	if err != nil {
		m.logger.Error("failed to persist disconnected status",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
	}
}

// instanceNameFor derives a gateway instance name for a fresh session.
func instanceNameFor(session *model.Session) string {
	slug := strings.ToLower(session.Name)
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '-'
		default:
			return -1
		}
	}, slug)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "session"
	}
	return fmt.Sprintf("%s-%s", slug, session.ID.String()[:8])
}
