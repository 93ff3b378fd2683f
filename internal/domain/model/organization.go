package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization is the tenant boundary. Every session and subscription belongs
// to exactly one organization.
type Organization struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name        string    `gorm:"not null;size:200" json:"name"`
	PlanName    string    `gorm:"size:100" json:"plan_name"`
	MaxSessions int       `gorm:"not null;default:1" json:"max_sessions"`
	MaxAgents   int       `gorm:"not null;default:1" json:"max_agents"`
	// LegacyBilling marks tenants grandfathered out of per-session billing;
	// their sessions never require a subscription.
	LegacyBilling bool      `gorm:"not null;default:false" json:"legacy_billing"`
	BillingEmail  string    `gorm:"size:320" json:"billing_email"`
	CreatedAt     time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt     time.Time `gorm:"default:now()" json:"updated_at"`

	Sessions []Session `gorm:"foreignKey:OrganizationID" json:"sessions,omitempty"`
}

func (o *Organization) BeforeCreate(_ *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// TableName specifies the table name for GORM.
func (Organization) TableName() string {
	return "organizations"
}
