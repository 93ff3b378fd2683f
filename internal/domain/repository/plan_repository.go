package repository

import (
	"context"

	"github.com/marioschiavon/uplink/internal/domain/model"
)

// PlanRepository persists the synced plan catalog.
type PlanRepository interface {
	ListActive(ctx context.Context) ([]model.Plan, error)
	GetByPriceID(ctx context.Context, priceID string) (*model.Plan, error)
	// UpsertByPriceID inserts or refreshes a plan keyed on its provider price.
	UpsertByPriceID(ctx context.Context, plan *model.Plan) error
	// DeactivateMissing flips active=false on plans whose price id is not in
	// keep. Called after a full sync.
	DeactivateMissing(ctx context.Context, provider model.PaymentProvider, keep []string) error
}
