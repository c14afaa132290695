package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Class is catalog reference data: price, capacity and age range. The
// pricing core treats it as read-only except for the enrolled counter, which
// is decremented conditionally at enrollment-activation time.
type Class struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name     string          `gorm:"type:varchar(255)" json:"name"`
	Program  string          `gorm:"type:varchar(100);index" json:"program"`
	Price    decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
	Capacity int             `json:"capacity"`
	Enrolled int             `gorm:"default:0" json:"enrolled"`
	AgeMin   int             `json:"age_min"`
	AgeMax   int             `json:"age_max"`

	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
}

// HasCapacity reports whether the class can take one more enrollment.
func (c Class) HasCapacity() bool {
	return c.Capacity <= 0 || c.Enrolled < c.Capacity
}
