package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentType distinguishes how a charge was initiated
type PaymentType string

const (
	PaymentTypeOneTime      PaymentType = "one_time"
	PaymentTypeSubscription PaymentType = "subscription"
	PaymentTypeInstallment  PaymentType = "installment"
)

// PaymentStatus represents the state of one charge attempt
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusSucceeded         PaymentStatus = "succeeded"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Payment is one attempted charge against an order. Created by the
// orchestrator in pending status; mutated only by the reconciler in response
// to provider events, never from user input, so a forged success state is
// unrepresentable. Invariant: RefundAmount <= Amount.
type Payment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderID uint          `gorm:"index" json:"order_id"`
	Type    PaymentType   `gorm:"type:varchar(20)" json:"type"`
	Status  PaymentStatus `gorm:"type:varchar(30);index" json:"status"`

	Amount       decimal.Decimal `gorm:"type:decimal(12,2)" json:"amount"`
	Currency     string          `gorm:"type:varchar(10);default:'USD'" json:"currency"`
	RefundAmount decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"refund_amount"`

	ExternalRef   string     `gorm:"type:varchar(100);index" json:"external_ref"`
	FailureReason string     `gorm:"type:varchar(255)" json:"failure_reason,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`

	// Relationships
	Order Order `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}
