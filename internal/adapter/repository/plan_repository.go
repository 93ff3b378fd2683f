package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/marioschiavon/uplink/internal/domain/model"
	"github.com/marioschiavon/uplink/internal/domain/repository"
)

type planRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPlanRepository creates a new plan repository.
func NewPlanRepository(db *gorm.DB, logger *zap.Logger) repository.PlanRepository {
	return &planRepository{db: db, logger: logger}
}

func (r *planRepository) ListActive(ctx context.Context) ([]model.Plan, error) {
	var plans []model.Plan

	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("amount ASC").
		Find(&plans).Error
	if err != nil {
		r.logger.Error("Failed to list plans", zap.Error(err))
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}

	return plans, nil
}

func (r *planRepository) GetByPriceID(ctx context.Context, priceID string) (*model.Plan, error) {
	var plan model.Plan

	err := r.db.WithContext(ctx).
		Where("price_id = ?", priceID).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get plan",
			zap.String("price_id", priceID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	return &plan, nil
}

func (r *planRepository) UpsertByPriceID(ctx context.Context, plan *model.Plan) error {
	existing, err := r.GetByPriceID(ctx, plan.PriceID)
	if err != nil {
		return err
	}

	if existing == nil {
		if err := r.db.WithContext(ctx).Create(plan).Error; err != nil {
			return fmt.Errorf("failed to create plan: %w", err)
		}
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&model.Plan{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"name":       plan.Name,
			"amount":     plan.Amount,
			"currency":   plan.Currency,
			"interval":   plan.Interval,
			"active":     plan.Active,
			"updated_at": gorm.Expr("now()"),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update plan: %w", result.Error)
	}

	plan.ID = existing.ID
	return nil
}

func (r *planRepository) DeactivateMissing(ctx context.Context, provider model.PaymentProvider, keep []string) error {
	query := r.db.WithContext(ctx).
		Model(&model.Plan{}).
		Where("provider = ? AND active = ?", provider, true)
	if len(keep) > 0 {
		query = query.Where("price_id NOT IN ?", keep)
	}

	result := query.Updates(map[string]interface{}{
		"active":     false,
		"updated_at": gorm.Expr("now()"),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate plans: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		r.logger.Info("plans deactivated",
			zap.String("provider", string(provider)),
			zap.Int64("count", result.RowsAffected))
	}
	return nil
}
