package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONB represents a JSONB database type.
type JSONB map[string]interface{}

// Value implements driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner interface
func (j *JSONB) Scan(src interface{}) error {
	if src == nil {
		*j = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		*j = make(JSONB)
		return nil
	}
}

// WebhookEvent is the audit row written for every payment webhook received,
// whether or not reconciliation succeeded.
type WebhookEvent struct {
	ID       uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Provider PaymentProvider `gorm:"type:varchar(20);not null;uniqueIndex:idx_webhook_events_provider_event" json:"provider"`
	// EventID is the provider-assigned event identifier, scoped per provider
	// for dedupe.
	EventID   string `gorm:"size:100;not null;uniqueIndex:idx_webhook_events_provider_event" json:"event_id"`
	EventType string `gorm:"size:100;not null" json:"event_type"`
	Payload   JSONB  `gorm:"type:jsonb" json:"payload,omitempty"`
	// ProcessingError holds the reconciliation failure, if any. The webhook
	// was still acked; operators follow up from here.
	ProcessingError string    `gorm:"type:text" json:"processing_error,omitempty"`
	CreatedAt       time.Time `gorm:"default:now()" json:"created_at"`
}

func (w *WebhookEvent) BeforeCreate(_ *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// TableName specifies the table name for GORM.
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
