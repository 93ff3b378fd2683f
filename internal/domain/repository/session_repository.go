package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/marioschiavon/uplink/internal/domain/model"
)

// SessionRepository persists sessions.
type SessionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	GetByInstanceName(ctx context.Context, instanceName string) (*model.Session, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]model.Session, error)
	// ListProvisioned returns every session that has gateway credentials,
	// across all organizations. The lifecycle manager polls these.
	ListProvisioned(ctx context.Context) ([]model.Session, error)
	// MostRecentForOrganization returns the newest session of an organization
	// or nil when it has none. Used as the webhook reconciliation fallback.
	MostRecentForOrganization(ctx context.Context, orgID uuid.UUID) (*model.Session, error)
	CountByOrganization(ctx context.Context, orgID uuid.UUID) (int64, error)

	Create(ctx context.Context, session *model.Session) error
	// UpdateFields applies a partial update and stamps updated_at.
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	// ClearGatewayCredentials nulls api_token, api_token_full, qr_code and
	// pairing_code in one statement.
	ClearGatewayCredentials(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}
