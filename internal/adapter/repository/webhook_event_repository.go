package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	domainErrors "github.com/marioschiavon/uplink/internal/domain/errors"
	"github.com/marioschiavon/uplink/internal/domain/model"
	"github.com/marioschiavon/uplink/internal/domain/repository"
)

type webhookEventRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWebhookEventRepository creates a new webhook event repository.
func NewWebhookEventRepository(db *gorm.DB, logger *zap.Logger) repository.WebhookEventRepository {
	return &webhookEventRepository{db: db, logger: logger}
}

func (r *webhookEventRepository) Create(ctx context.Context, event *model.WebhookEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		// The unique index on (provider, event_id) rejects redeliveries the
		// dedupe store missed.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domainErrors.ErrDuplicateEvent
		}
		r.logger.Error("Failed to record webhook event",
			zap.String("event_id", event.EventID),
			zap.Error(err))
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}

func (r *webhookEventRepository) MarkError(ctx context.Context, eventID string, processingError string) error {
	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Update("processing_error", processingError)
	if result.Error != nil {
		return fmt.Errorf("failed to mark webhook event error: %w", result.Error)
	}
	return nil
}
