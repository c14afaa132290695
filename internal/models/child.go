package models

import (
	"time"

	"gorm.io/gorm"
)

// Child belongs to one User. Ownership is checked at pricing time; the
// pricing service never accepts a child id without verifying it against the
// calling user.
type Child struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UserID    uint      `gorm:"index" json:"user_id"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	BirthDate time.Time `json:"birth_date"`

	// Relationships
	User        User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Enrollments []Enrollment `gorm:"foreignKey:ChildID" json:"enrollments,omitempty"`
}
