package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DiscountType represents how a promo code reduces an order
type DiscountType string

const (
	DiscountTypePercentage  DiscountType = "percentage"
	DiscountTypeFixedAmount DiscountType = "fixed_amount"
)

// DiscountCode is a user-entered promo code. Codes are case-normalized and
// unique. Invariant: CurrentUses <= MaxUses when MaxUses is set; the usage
// counter is only ever advanced by a conditional increment inside the
// order-creation transaction, never read-check-write.
type DiscountCode struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Code  string          `gorm:"type:varchar(50);uniqueIndex" json:"code"`
	Type  DiscountType    `gorm:"type:varchar(20)" json:"type"`
	Value decimal.Decimal `gorm:"type:decimal(12,2)" json:"value"`

	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`

	MaxUses        *int             `json:"max_uses,omitempty"`
	MaxUsesPerUser *int             `json:"max_uses_per_user,omitempty"`
	CurrentUses    int              `gorm:"default:0" json:"current_uses"`
	MinOrderAmount *decimal.Decimal `gorm:"type:decimal(12,2)" json:"min_order_amount,omitempty"`

	// Optional scope restriction: when set, every line item of the order
	// must belong to this program for the code to apply.
	Program  string `gorm:"type:varchar(100)" json:"program,omitempty"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}

// NormalizeCode canonicalizes user input before lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DiscountCodeUsage records one redemption, used to enforce the per-user cap
// and to keep an audit trail of which order consumed a slot.
type DiscountCodeUsage struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	DiscountCodeID uint `gorm:"index:idx_code_user,priority:1" json:"discount_code_id"`
	UserID         uint `gorm:"index:idx_code_user,priority:2" json:"user_id"`
	OrderID        uint `gorm:"index" json:"order_id"`
}
