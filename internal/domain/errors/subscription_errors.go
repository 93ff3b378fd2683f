package errors

import "errors"

var (
	// ErrSubscriptionNotFound indicates no subscription matches the provider
	// reference on a webhook event.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrNoSessionForOrganization indicates webhook reconciliation could not
	// resolve any session, even via the most-recent-session fallback.
	ErrNoSessionForOrganization = errors.New("no session found for organization")

	// ErrDuplicateEvent indicates the webhook event was already processed.
	ErrDuplicateEvent = errors.New("webhook event already processed")
)
