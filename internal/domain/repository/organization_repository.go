package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/marioschiavon/uplink/internal/domain/model"
)

// OrganizationRepository persists organizations.
type OrganizationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Organization, error)
	Create(ctx context.Context, org *model.Organization) error
	Update(ctx context.Context, org *model.Organization) error
}
