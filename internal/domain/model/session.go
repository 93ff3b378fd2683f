package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionStatus is the persisted connection status of a session.
type SessionStatus string

const (
	SessionStatusDisconnected   SessionStatus = "disconnected"
	SessionStatusQRCode         SessionStatus = "qrcode"
	SessionStatusConnected      SessionStatus = "connected"
	SessionStatusPendingPayment SessionStatus = "pending_payment"
)

// Scan implements sql.Scanner interface
func (s *SessionStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = SessionStatus(v)
	case []byte:
		*s = SessionStatus(v)
	default:
		*s = SessionStatusDisconnected
	}
	return nil
}

// Value implements driver.Valuer interface
func (s SessionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// StringSlice is a jsonb-backed []string column.
type StringSlice []string

// Value implements driver.Valuer interface
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner interface
func (s *StringSlice) Scan(src interface{}) error {
	if src == nil {
		*s = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		*s = nil
		return nil
	}
}

// Session represents one gateway instance bound to an organization.
type Session struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	Name           string    `gorm:"not null;size:100" json:"name"`
	// InstanceName is the gateway-side instance identifier. Empty until the
	// instance has been provisioned.
	InstanceName string `gorm:"uniqueIndex;size:100" json:"instance_name"`
	// APIToken is the per-instance gateway key; APITokenFull is the extended
	// credential some gateway builds return alongside it. Both are cleared
	// when the backing subscription is cancelled.
	APIToken             string        `gorm:"size:200" json:"-"`
	APITokenFull         string        `gorm:"size:500" json:"-"`
	QRCode               string        `gorm:"type:text" json:"-"`
	PairingCode          string        `gorm:"size:50" json:"pairing_code,omitempty"`
	Status               SessionStatus `gorm:"type:varchar(20);not null;default:'disconnected'" json:"status"`
	RequiresSubscription bool          `gorm:"not null;default:true" json:"requires_subscription"`

	// Client webhook forwarding settings.
	WebhookURL     string      `gorm:"size:500" json:"webhook_url,omitempty"`
	WebhookEnabled bool        `gorm:"not null;default:false" json:"webhook_enabled"`
	WebhookEvents  StringSlice `gorm:"type:jsonb" json:"webhook_events,omitempty"`

	CreatedAt time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:now()" json:"updated_at"`

	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}

func (s *Session) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// HasGatewayCredentials reports whether the session has been provisioned on
// the gateway and can be polled.
func (s *Session) HasGatewayCredentials() bool {
	return s.InstanceName != "" && s.APIToken != ""
}

// TableName specifies the table name for GORM.
func (Session) TableName() string {
	return "sessions"
}
