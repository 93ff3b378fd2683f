package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SubscriptionStatus represents the status of a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
)

// Scan implements sql.Scanner interface
func (s *SubscriptionStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = SubscriptionStatus(v)
	case []byte:
		*s = SubscriptionStatus(v)
	default:
		*s = SubscriptionStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (s SubscriptionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// PaymentProvider identifies the billing provider behind a subscription.
type PaymentProvider string

const (
	ProviderStripe      PaymentProvider = "stripe"
	ProviderMercadoPago PaymentProvider = "mercadopago"
)

// Subscription represents one paid billing relationship, practically 1:1 with
// a session. Rows are never hard-deleted; cancellation is a status transition.
type Subscription struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OrganizationID uuid.UUID       `gorm:"type:uuid;not null;index" json:"organization_id"`
	SessionID      *uuid.UUID      `gorm:"type:uuid;index" json:"session_id,omitempty"`
	Provider       PaymentProvider `gorm:"type:varchar(20);not null" json:"provider"`
	// Provider-side identifiers. CustomerID is the Stripe customer or the
	// Mercado Pago payer; ProviderSubscriptionID is the subscription or
	// preapproval id.
	CustomerID             string             `gorm:"size:100;index" json:"customer_id"`
	ProviderSubscriptionID string             `gorm:"uniqueIndex;size:100" json:"provider_subscription_id"`
	Status                 SubscriptionStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Amount                 decimal.Decimal    `gorm:"type:numeric(12,2)" json:"amount"`
	Currency               string             `gorm:"size:3;default:'BRL'" json:"currency"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool               `gorm:"not null;default:false" json:"cancel_at_period_end"`
	CreatedAt              time.Time          `gorm:"default:now()" json:"created_at"`
	UpdatedAt              time.Time          `gorm:"default:now()" json:"updated_at"`

	Session *Session `gorm:"foreignKey:SessionID" json:"session,omitempty"`
}

func (s *Subscription) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// TableName specifies the table name for GORM.
func (Subscription) TableName() string {
	return "subscriptions"
}
