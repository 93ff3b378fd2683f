package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/price"
	"go.uber.org/zap"

	"github.com/marioschiavon/uplink/internal/domain/model"
	"github.com/marioschiavon/uplink/internal/domain/repository"
)

// PlanSync mirrors the Stripe price catalog into the local plans table so the
// dashboard can list plans without hitting Stripe per request.
type PlanSync struct {
	plans  repository.PlanRepository
	logger *zap.Logger
}

// NewPlanSync creates a plan sync.
func NewPlanSync(plans repository.PlanRepository, logger *zap.Logger) *PlanSync {
	return &PlanSync{plans: plans, logger: logger}
}

// SyncStripePlans upserts every active recurring Stripe price and deactivates
// plans whose price no longer exists. Returns the number of synced plans.
func (s *PlanSync) SyncStripePlans(ctx context.Context) (int, error) {
	params := &stripe.PriceListParams{
		Active: stripe.Bool(true),
	}
	params.AddExpand("data.product")

	iter := price.List(params)

	var keep []string
	for iter.Next() {
		p := iter.Price()
		if p.Recurring == nil {
			// One-time prices are not session plans.
			continue
		}

		name := p.Nickname
		if name == "" && p.Product != nil {
			name = p.Product.Name
		}
		if name == "" {
			name = p.ID
		}

		plan := &model.Plan{
			Name:     name,
			Provider: model.ProviderStripe,
			PriceID:  p.ID,
			Amount:   decimal.NewFromInt(p.UnitAmount).Div(decimal.NewFromInt(100)),
			Currency: strings.ToUpper(string(p.Currency)),
			Interval: string(p.Recurring.Interval),
			Active:   true,
		}

		if err := s.plans.UpsertByPriceID(ctx, plan); err != nil {
			return len(keep), fmt.Errorf("failed to upsert plan %s: %w", p.ID, err)
		}
		keep = append(keep, p.ID)

		s.logger.Debug("plan synced",
			zap.String("price_id", p.ID),
			zap.String("name", name))
	}

	if err := iter.Err(); err != nil {
		return len(keep), fmt.Errorf("failed to list stripe prices: %w", err)
	}

	if err := s.plans.DeactivateMissing(ctx, model.ProviderStripe, keep); err != nil {
		return len(keep), err
	}

	s.logger.Info("stripe plans synced", zap.Int("count", len(keep)))
	return len(keep), nil
}
