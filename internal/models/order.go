package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus is the order lifecycle. Draft and pending_payment are the only
// cancellable states; everything after is driven by gateway webhooks.
type OrderStatus string

const (
	OrderStatusDraft          OrderStatus = "draft"
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusPartiallyPaid  OrderStatus = "partially_paid"
	OrderStatusRefunded       OrderStatus = "refunded"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// Cancellable reports whether the order may still be cancelled by its owner.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusDraft || s == OrderStatusPendingPayment
}

// Order is a priced cart snapshot belonging to one user.
// Invariant: Total = Subtotal - DiscountTotal, Total >= 0.
// Mutated only by the pricing service (creation) and the reconciler
// (payment events). Never hard-deleted; cancellation is a status change.
type Order struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UUID   string      `gorm:"type:varchar(64);uniqueIndex" json:"uuid"`
	UserID uint        `gorm:"index" json:"user_id"`
	Status OrderStatus `gorm:"type:varchar(30);index" json:"status"`

	Subtotal      decimal.Decimal `gorm:"type:decimal(12,2)" json:"subtotal"`
	DiscountTotal decimal.Decimal `gorm:"type:decimal(12,2)" json:"discount_total"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2)" json:"total"`

	// Aggregate discount breakdown, kept for display and audit.
	SiblingTotal     decimal.Decimal `gorm:"type:decimal(12,2)" json:"sibling_total"`
	ScholarshipTotal decimal.Decimal `gorm:"type:decimal(12,2)" json:"scholarship_total"`
	PromoTotal       decimal.Decimal `gorm:"type:decimal(12,2)" json:"promo_total"`
	PromoCode        string          `gorm:"type:varchar(50)" json:"promo_code,omitempty"`

	Notes             string     `gorm:"type:text" json:"notes,omitempty"`
	ExternalChargeRef *string    `gorm:"type:varchar(100);index" json:"external_charge_ref,omitempty"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`

	// Relationships
	User      User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	LineItems []OrderLineItem `gorm:"foreignKey:OrderID" json:"line_items,omitempty"`
	Payments  []Payment       `gorm:"foreignKey:OrderID" json:"payments,omitempty"`
}

// OrderLineItem is one (child, class) enrollment request within an order.
// Invariant: LineTotal = UnitPrice - DiscountAmount, never negative.
// Immutable after order creation except via cancellation of the parent.
type OrderLineItem struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderID uint `gorm:"index" json:"order_id"`
	ChildID uint `gorm:"index" json:"child_id"`
	ClassID uint `gorm:"index" json:"class_id"`

	Description    string          `gorm:"type:varchar(255)" json:"description"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(12,2)" json:"unit_price"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2)" json:"discount_amount"`
	LineTotal      decimal.Decimal `gorm:"type:decimal(12,2)" json:"line_total"`

	// Relationships
	Child Child `gorm:"foreignKey:ChildID" json:"child,omitempty"`
	Class Class `gorm:"foreignKey:ClassID" json:"class,omitempty"`
}
