package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Scholarship is a standing, admin-approved discount percentage tied to a
// user or to one specific child. It is not order-scoped; the pricing engine
// consults it on every calculation. ChildID nil means family-wide.
type Scholarship struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID     uint            `gorm:"index" json:"user_id"`
	ChildID    *uint           `gorm:"index" json:"child_id,omitempty"`
	Percentage decimal.Decimal `gorm:"type:decimal(5,2)" json:"percentage"`

	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	IsActive   bool       `gorm:"default:true" json:"is_active"`
}

// ActiveAt reports whether the scholarship applies at the given instant.
func (s Scholarship) ActiveAt(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	if s.ValidFrom != nil && now.Before(*s.ValidFrom) {
		return false
	}
	if s.ValidUntil != nil && now.After(*s.ValidUntil) {
		return false
	}
	return true
}
