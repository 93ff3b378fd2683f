package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Plan is a purchasable monthly plan, synced from the billing provider's
// price catalog by cmd/sync-plans.
type Plan struct {
	ID       uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name     string          `gorm:"not null;size:200" json:"name"`
	Provider PaymentProvider `gorm:"type:varchar(20);not null;default:'stripe'" json:"provider"`
	// PriceID is the provider-side price identifier used at checkout.
	PriceID  string          `gorm:"uniqueIndex;size:100;not null" json:"price_id"`
	Amount   decimal.Decimal `gorm:"type:numeric(12,2)" json:"amount"`
	Currency string          `gorm:"size:3" json:"currency"`
	Interval string          `gorm:"size:20;default:'month'" json:"interval"`
	Active   bool            `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:now()" json:"updated_at"`
}

func (p *Plan) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// TableName specifies the table name for GORM.
func (Plan) TableName() string {
	return "plans"
}
