package errors

import "errors"

var (
	// ErrSessionNotFound indicates the session does not exist or belongs to
	// another organization.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSubscriptionRequired indicates the session needs an active paid
	// subscription before it can be connected.
	ErrSubscriptionRequired = errors.New("session requires an active subscription")

	// ErrPaymentPending blocks deletion while a checkout is in flight for the
	// session.
	ErrPaymentPending = errors.New("session has a pending payment")

	// ErrSessionLimitReached indicates the organization already has the
	// maximum number of sessions its plan allows.
	ErrSessionLimitReached = errors.New("organization session limit reached")

	// ErrQRUnavailable indicates the gateway did not produce a QR code even
	// after the retry.
	ErrQRUnavailable = errors.New("gateway did not return a QR code")

	// ErrSessionNotProvisioned indicates an operation that needs gateway
	// credentials ran against a session that has none.
	ErrSessionNotProvisioned = errors.New("session has no gateway instance")
)
