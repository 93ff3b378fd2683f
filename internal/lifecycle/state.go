// Package lifecycle supervises the connection lifecycle of gateway sessions.
// Each tracked session owns a scheduled task that polls the gateway, walks an
// explicit state machine and persists status changes, replacing the
// dashboard's implicit status/message/qr flag juggling.
package lifecycle

import (
	"time"

	"github.com/marioschiavon/uplink/internal/domain/model"
)

// Phase is the lifecycle phase of a session.
type Phase int

const (
	// PhaseNoSession: the session exists locally but has no gateway instance.
	PhaseNoSession Phase = iota
	// PhasePendingStart: a start was requested; the connect call is in flight.
	PhasePendingStart
	// PhaseAwaitingQR: a QR code is displayed and counting down.
	PhaseAwaitingQR
	// PhaseConnected: the gateway reports an open connection.
	PhaseConnected
	// PhaseDisconnected: not connected, with a reason.
	PhaseDisconnected
)

func (p Phase) String() string {
	switch p {
	case PhaseNoSession:
		return "no_session"
	case PhasePendingStart:
		return "pending_start"
	case PhaseAwaitingQR:
		return "awaiting_qr"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// State is the in-memory lifecycle state of one session. QRCode, PairingCode
// and ExpiresAt are only meaningful in PhaseAwaitingQR; Reason only in
// PhaseDisconnected.
type State struct {
	Phase       Phase
	QRCode      string
	PairingCode string
	ExpiresAt   time.Time
	Reason      string
	// ObservedAt is when the gateway last confirmed this state.
	ObservedAt time.Time
}

// holdsQR reports whether a QR code is currently displayed. While true, a
// stale disconnected observation must not clobber the state.
func (s State) holdsQR() bool {
	return s.Phase == PhaseAwaitingQR && s.QRCode != ""
}

// stateFromStored derives the initial in-memory state for a session loaded
// from the database. Stored QR codes are not trusted across restarts; the
// session re-enters disconnected and the poll promotes it if it is live.
func stateFromStored(session *model.Session) State {
	now := time.Now()
	switch session.Status {
	case model.SessionStatusConnected:
		return State{Phase: PhaseConnected, ObservedAt: now}
	default:
		return State{Phase: PhaseDisconnected, Reason: "restored from store", ObservedAt: now}
	}
}
