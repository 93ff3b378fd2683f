package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/marioschiavon/uplink/internal/domain/model"
)

// SubscriptionRepository persists subscriptions. Rows transition status but
// are never hard-deleted.
type SubscriptionRepository interface {
	GetByProviderSubscriptionID(ctx context.Context, providerSubID string) (*model.Subscription, error)
	GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*model.Subscription, error)
	// HasWithStatus reports whether the session has a subscription in any of
	// the given statuses.
	HasWithStatus(ctx context.Context, sessionID uuid.UUID, statuses ...model.SubscriptionStatus) (bool, error)

	Create(ctx context.Context, sub *model.Subscription) error
	Update(ctx context.Context, sub *model.Subscription) error
}
