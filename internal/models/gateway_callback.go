package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentGateway identifies the external payment provider
type PaymentGateway string

const (
	PaymentGatewayMidtrans PaymentGateway = "midtrans"
)

// GatewayCallback stores every webhook received from the provider, raw and
// regardless of matching outcome, as an audit trail.
type GatewayCallback struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	PaymentGateway PaymentGateway  `gorm:"type:varchar(50);not null" json:"payment_gateway"`
	EventID        string          `gorm:"type:varchar(120);index" json:"event_id"`
	EventType      string          `gorm:"type:varchar(50)" json:"event_type"`
	Payload        json.RawMessage `gorm:"type:jsonb" json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"deleted_at,omitempty"`
}

// ProcessedEvent marks a webhook event id as applied. The unique index is
// the durable idempotency barrier; the reconciler inserts it in the same
// transaction as the state change it guards.
type ProcessedEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EventID     string    `gorm:"type:varchar(120);uniqueIndex" json:"event_id"`
	ProcessedAt time.Time `json:"processed_at"`
}
