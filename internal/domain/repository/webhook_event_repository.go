package repository

import (
	"context"

	"github.com/marioschiavon/uplink/internal/domain/model"
)

// WebhookEventRepository writes the payment webhook audit trail.
type WebhookEventRepository interface {
	// Create returns errors.ErrDuplicateEvent when an event with the same
	// provider and event id was already recorded.
	Create(ctx context.Context, event *model.WebhookEvent) error
	// MarkError records the reconciliation failure for an already-stored event.
	MarkError(ctx context.Context, eventID string, processingError string) error
}
