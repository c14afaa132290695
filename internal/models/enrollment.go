package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EnrollmentStatus represents the lifecycle of a child-class binding
type EnrollmentStatus string

const (
	EnrollmentStatusPending    EnrollmentStatus = "pending"
	EnrollmentStatusActive     EnrollmentStatus = "active"
	EnrollmentStatusCancelled  EnrollmentStatus = "cancelled"
	EnrollmentStatusCompleted  EnrollmentStatus = "completed"
	EnrollmentStatusWaitlisted EnrollmentStatus = "waitlisted"
)

// Enrollment binds a child to a class, derived from an order line item.
// Price fields are a frozen snapshot taken when the order is paid; later
// catalog price changes never retroactively affect it. Activation happens
// only via a confirmed payment event, never from the synchronous API path.
type Enrollment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	ChildID         uint             `gorm:"index" json:"child_id"`
	ClassID         uint             `gorm:"index" json:"class_id"`
	OrderLineItemID uint             `gorm:"index" json:"order_line_item_id"`
	Status          EnrollmentStatus `gorm:"type:varchar(20);index" json:"status"`

	BasePrice      decimal.Decimal `gorm:"type:decimal(12,2)" json:"base_price"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2)" json:"discount_amount"`
	FinalPrice     decimal.Decimal `gorm:"type:decimal(12,2)" json:"final_price"`

	EnrolledAt  *time.Time `json:"enrolled_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	// Relationships
	Child Child `gorm:"foreignKey:ChildID" json:"child,omitempty"`
	Class Class `gorm:"foreignKey:ClassID" json:"class,omitempty"`
}
