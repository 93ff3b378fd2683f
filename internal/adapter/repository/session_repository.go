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

type sessionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *gorm.DB, logger *zap.Logger) repository.SessionRepository {
	return &sessionRepository{db: db, logger: logger}
}

func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	var session model.Session

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get session by ID",
			zap.String("session_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

func (r *sessionRepository) GetByInstanceName(ctx context.Context, instanceName string) (*model.Session, error) {
	var session model.Session

	err := r.db.WithContext(ctx).
		Where("instance_name = ?", instanceName).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get session by instance name",
			zap.String("instance_name", instanceName),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

func (r *sessionRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]model.Session, error) {
	var sessions []model.Session

	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		r.logger.Error("Failed to list sessions",
			zap.String("organization_id", orgID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, nil
}

func (r *sessionRepository) ListProvisioned(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session

	err := r.db.WithContext(ctx).
		Where("instance_name <> '' AND api_token <> ''").
		Find(&sessions).Error
	if err != nil {
		r.logger.Error("Failed to list provisioned sessions", zap.Error(err))
		return nil, fmt.Errorf("failed to list provisioned sessions: %w", err)
	}

	return sessions, nil
}

func (r *sessionRepository) MostRecentForOrganization(ctx context.Context, orgID uuid.UUID) (*model.Session, error) {
	var session model.Session

	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get most recent session",
			zap.String("organization_id", orgID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get most recent session: %w", err)
	}

	return &session, nil
}

func (r *sessionRepository) CountByOrganization(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("organization_id = ?", orgID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	return count, nil
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		r.logger.Error("Failed to create session",
			zap.String("organization_id", session.OrganizationID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *sessionRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	// Updates always stamp updated_at, even when gorm would skip it for
	// map-based updates.
	fields["updated_at"] = gorm.Expr("now()")

	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		r.logger.Error("Failed to update session",
			zap.String("session_id", id.String()),
			zap.Error(result.Error))
		return fmt.Errorf("failed to update session: %w", result.Error)
	}

	return nil
}

func (r *sessionRepository) ClearGatewayCredentials(ctx context.Context, id uuid.UUID) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{
		"api_token":      "",
		"api_token_full": "",
		"qr_code":        "",
		"pairing_code":   "",
	})
}

func (r *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&model.Session{})
	if result.Error != nil {
		r.logger.Error("Failed to delete session",
			zap.String("session_id", id.String()),
			zap.Error(result.Error))
		return fmt.Errorf("failed to delete session: %w", result.Error)
	}

	return nil
}
