package lifecycle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	domainErrors "github.com/marioschiavon/uplink/internal/domain/errors"
	"github.com/marioschiavon/uplink/internal/domain/model"
	"github.com/marioschiavon/uplink/internal/infrastructure/gateway"
)

// StartSession provisions the gateway instance if the session has none, then
// drives the session to the QR-display state. Subscription gating happens in
// the session service before this is called.
func (m *Manager) StartSession(ctx context.Context, session *model.Session) (State, error) {
	if !session.HasGatewayCredentials() {
		creds, err := m.gw.CreateInstance(ctx, instanceNameFor(session))
		if err != nil {
			return State{}, fmt.Errorf("failed to provision gateway instance: %w", err)
		}

		session.InstanceName = creds.InstanceName
		session.APIToken = creds.Token
		session.APITokenFull = creds.Token

		err = m.sessions.UpdateFields(ctx, session.ID, map[string]interface{}{
			"instance_name":  session.InstanceName,
			"api_token":      session.APIToken,
			"api_token_full": session.APITokenFull,
		})
		if err != nil {
			return State{}, fmt.Errorf("failed to store gateway credentials: %w", err)
		}
	}

	m.Track(session)
	t, ok := m.getTask(session.ID)
	if !ok {
		return State{}, domainErrors.ErrSessionNotProvisioned
	}

	t.mu.Lock()
	t.stopQRWatchLocked()
	t.state = State{Phase: PhasePendingStart, ObservedAt: time.Now()}
	t.mu.Unlock()

	return m.connectAndAwaitQR(ctx, t)
}

// RefreshQR regenerates the QR code and resets its countdown.
func (m *Manager) RefreshQR(ctx context.Context, session *model.Session) (State, error) {
	if !session.HasGatewayCredentials() {
		return State{}, domainErrors.ErrSessionNotProvisioned
	}

	m.Track(session)
	t, ok := m.getTask(session.ID)
	if !ok {
		return State{}, domainErrors.ErrSessionNotProvisioned
	}

	t.mu.Lock()
	t.stopQRWatchLocked()
	t.state = State{Phase: PhasePendingStart, ObservedAt: time.Now()}
	t.mu.Unlock()

	return m.connectAndAwaitQR(ctx, t)
}

// CloseSession disconnects the instance but keeps its credentials so it can
// be started again without re-provisioning. The gateway logout is best-effort.
func (m *Manager) CloseSession(ctx context.Context, session *model.Session) (State, error) {
	if !session.HasGatewayCredentials() {
		return State{}, domainErrors.ErrSessionNotProvisioned
	}

	if err := m.gw.Logout(ctx, session.InstanceName, session.APIToken); err != nil {
		m.logger.Warn("gateway logout failed on close",
			zap.String("session_id", session.ID.String()),
			zap.String("instance", session.InstanceName),
			zap.Error(err))
	}

	now := time.Now()
	closed := State{Phase: PhaseDisconnected, Reason: "closed by user", ObservedAt: now}

	if t, ok := m.getTask(session.ID); ok {
		t.mu.Lock()
		t.stopQRWatchLocked()
		t.state = closed
		t.mu.Unlock()
	}

	m.persistDisconnected(ctx, session.ID)
	return closed, nil
}

// Teardown removes the instance from the gateway and deletes the local
// record. Gateway failures are logged and do not block the local deletion.
func (m *Manager) Teardown(ctx context.Context, session *model.Session) error {
	if session.HasGatewayCredentials() {
		if err := m.gw.Logout(ctx, session.InstanceName, session.APIToken); err != nil {
			m.logger.Warn("gateway logout failed on teardown",
				zap.String("session_id", session.ID.String()),
				zap.String("instance", session.InstanceName),
				zap.Error(err))
		}
		if err := m.gw.DeleteInstance(ctx, session.InstanceName, session.APIToken); err != nil {
			m.logger.Warn("gateway instance deletion failed on teardown",
				zap.String("session_id", session.ID.String()),
				zap.String("instance", session.InstanceName),
				zap.Error(err))
		}
	}

	m.Untrack(session.ID)

	if err := m.sessions.Delete(ctx, session.ID); err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}

	m.logger.Info("session deleted",
		zap.String("session_id", session.ID.String()),
		zap.String("instance", session.InstanceName))
	return nil
}

// connectAndAwaitQR runs the connect call with its single fixed-delay retry,
// then enters the QR-display state.
func (m *Manager) connectAndAwaitQR(ctx context.Context, t *task) (State, error) {
	t.mu.Lock()
	instance, token := t.instanceName, t.token
	t.mu.Unlock()

	qr, err := m.gw.Connect(ctx, instance, token)
	if err != nil || !qr.HasQR() {
		// The gateway often has no QR ready on the first attempt; one retry
		// after a fixed delay before giving up.
		select {
		case <-ctx.Done():
			return State{}, ctx.Err()
		case <-time.After(m.cfg.ConnectRetryDelay):
		}
		qr, err = m.gw.Connect(ctx, instance, token)
	}

	if err != nil {
		m.setDisconnected(ctx, t, "gateway offline")
		return m.currentState(t), fmt.Errorf("connect failed: %w", err)
	}

	if !qr.HasQR() {
		// Some restored instances connect immediately without a new QR.
		if snap := m.gw.CheckConnection(ctx, instance, token); snap.Connected {
			m.applyObservation(ctx, t, snap)
			return m.currentState(t), nil
		}
		m.setDisconnected(ctx, t, "qr unavailable")
		return m.currentState(t), domainErrors.ErrQRUnavailable
	}

	return m.enterAwaitingQR(ctx, t, qr), nil
}

// enterAwaitingQR installs the QR state, persists it and starts the QR watch.
func (m *Manager) enterAwaitingQR(ctx context.Context, t *task, qr *gateway.QRPayload) State {
	now := time.Now()
	deadline := now.Add(m.cfg.QRTTL)

	code := qr.Base64
	if code == "" {
		code = qr.Code
	}

	state := State{
		Phase:       PhaseAwaitingQR,
		QRCode:      code,
		PairingCode: qr.PairingCode,
		ExpiresAt:   deadline,
		ObservedAt:  now,
	}

	watchCtx, watchCancel := context.WithCancel(m.rootCtx())

	t.mu.Lock()
	t.stopQRWatchLocked()
	t.state = state
	t.qrCancel = watchCancel
	t.mu.Unlock()

	err := m.sessions.UpdateFields(ctx, t.sessionID, map[string]interface{}{
		"status":       model.SessionStatusQRCode,
		"qr_code":      code,
		"pairing_code": qr.PairingCode,
	})
	if err != nil {
		m.logger.Error("failed to persist qr status",
			zap.String("session_id", t.sessionID.String()),
			zap.Error(err))
	}

	m.wg.Add(1)
	go m.qrWatch(watchCtx, t, deadline)

	return state
}

// qrWatch polls while a QR code is displayed and enforces its expiry. The
// expiry check trusts a live connection over the timer: if the phone scanned
// at the last moment, the session comes up connected instead of expired.
func (m *Manager) qrWatch(ctx context.Context, t *task, deadline time.Time) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.QRPollInterval)
	defer ticker.Stop()

	expiry := time.NewTimer(time.Until(deadline))
	defer expiry.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			t.mu.Lock()
			instance, token := t.instanceName, t.token
			t.mu.Unlock()

			// The connect endpoint doubles as the QR refresh: it returns a
			// fresh code while pairing and nothing once connected.
			qr, err := m.gw.Connect(ctx, instance, token)
			if err == nil && qr.HasQR() {
				m.refreshDisplayedQR(ctx, t, qr)
				continue
			}

			snap := m.gw.CheckConnection(ctx, instance, token)
			if snap.Connected {
				m.applyObservation(ctx, t, snap)
				return
			}

		case <-expiry.C:
			t.mu.Lock()
			instance, token := t.instanceName, t.token
			t.mu.Unlock()

			snap := m.gw.CheckConnection(ctx, instance, token)
			if snap.Connected {
				m.applyObservation(ctx, t, snap)
				return
			}

			t.mu.Lock()
			if t.state.Phase != PhaseAwaitingQR {
				t.mu.Unlock()
				return
			}
			t.qrCancel = nil
			t.state = State{
				Phase:      PhaseDisconnected,
				Reason:     "qr code expired",
				ObservedAt: time.Now(),
			}
			t.mu.Unlock()

			m.logger.Info("qr code expired",
				zap.String("session_id", t.sessionID.String()),
				zap.String("instance", instance))
			m.persistDisconnected(ctx, t.sessionID)
			return
		}
	}
}

// refreshDisplayedQR swaps in a newer QR code without touching the countdown.
func (m *Manager) refreshDisplayedQR(ctx context.Context, t *task, qr *gateway.QRPayload) {
	code := qr.Base64
	if code == "" {
		code = qr.Code
	}

	t.mu.Lock()
	if t.state.Phase != PhaseAwaitingQR {
		t.mu.Unlock()
		return
	}
	t.state.QRCode = code
	if qr.PairingCode != "" {
		t.state.PairingCode = qr.PairingCode
	}
	t.state.ObservedAt = time.Now()
	pairing := t.state.PairingCode
	t.mu.Unlock()

	err := m.sessions.UpdateFields(ctx, t.sessionID, map[string]interface{}{
		"qr_code":      code,
		"pairing_code": pairing,
	})
	if err != nil {
		m.logger.Error("failed to persist refreshed qr",
			zap.String("session_id", t.sessionID.String()),
			zap.Error(err))
	}
}

func (m *Manager) setDisconnected(ctx context.Context, t *task, reason string) {
	t.mu.Lock()
	t.stopQRWatchLocked()
	t.state = State{Phase: PhaseDisconnected, Reason: reason, ObservedAt: time.Now()}
	t.mu.Unlock()

	m.persistDisconnected(ctx, t.sessionID)
}

func (m *Manager) currentState(t *task) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
