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

type organizationRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewOrganizationRepository creates a new organization repository.
func NewOrganizationRepository(db *gorm.DB, logger *zap.Logger) repository.OrganizationRepository {
	return &organizationRepository{db: db, logger: logger}
}

func (r *organizationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	var org model.Organization

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get organization",
			zap.String("organization_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

func (r *organizationRepository) Create(ctx context.Context, org *model.Organization) error {
	if err := r.db.WithContext(ctx).Create(org).Error; err != nil {
		r.logger.Error("Failed to create organization",
			zap.String("name", org.Name),
			zap.Error(err))
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

func (r *organizationRepository) Update(ctx context.Context, org *model.Organization) error {
	if err := r.db.WithContext(ctx).Save(org).Error; err != nil {
		r.logger.Error("Failed to update organization",
			zap.String("organization_id", org.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to update organization: %w", err)
	}
	return nil
}
