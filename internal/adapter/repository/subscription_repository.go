package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/marioschiavon/uplink/internal/domain/model"
	"github.com/marioschiavon/uplink/internal/domain/repository"
)

type subscriptionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSubscriptionRepository creates a new subscription repository.
func NewSubscriptionRepository(db *gorm.DB, logger *zap.Logger) repository.SubscriptionRepository {
	return &subscriptionRepository{db: db, logger: logger}
}

func (r *subscriptionRepository) GetByProviderSubscriptionID(ctx context.Context, providerSubID string) (*model.Subscription, error) {
	var sub model.Subscription

	err := r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get subscription by provider ID",
			zap.String("provider_subscription_id", providerSubID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

func (r *subscriptionRepository) GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*model.Subscription, error) {
	var sub model.Subscription

	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get subscription by session",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

func (r *subscriptionRepository) HasWithStatus(ctx context.Context, sessionID uuid.UUID, statuses ...model.SubscriptionStatus) (bool, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("session_id = ? AND status IN ?", sessionID, statuses).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check subscription status: %w", err)
	}

	return count > 0, nil
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *model.Subscription) error {
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		r.logger.Error("Failed to create subscription",
			zap.String("organization_id", sub.OrganizationID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *model.Subscription) error {
	result := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]interface{}{
			"customer_id":              sub.CustomerID,
			"provider_subscription_id": sub.ProviderSubscriptionID,
			"provider":                 sub.Provider,
			"status":                   sub.Status,
			"amount":                   sub.Amount,
			"currency":                 sub.Currency,
			"current_period_end":       sub.CurrentPeriodEnd,
			"cancel_at_period_end":     sub.CancelAtPeriodEnd,
			"updated_at":               gorm.Expr("now()"),
		})
	if result.Error != nil {
		r.logger.Error("Failed to update subscription",
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(result.Error))
		return fmt.Errorf("failed to update subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("subscription not found: %s", sub.ID)
	}

	return nil
}
