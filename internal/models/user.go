package models

import (
	"time"

	"gorm.io/gorm"
)

// Role represents the role of an authenticated caller
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleParent Role = "parent"
)

// User represents an account holder (a parent/guardian). Authentication is
// handled by an external identity provider; this row only anchors ownership.
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name  string `gorm:"type:varchar(255)" json:"name"`
	Email string `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Phone string `gorm:"type:varchar(50)" json:"phone"`
	Role  Role   `gorm:"type:varchar(20);default:'parent'" json:"role"`

	// Relationships
	Children []Child `gorm:"foreignKey:UserID" json:"children,omitempty"`
	Orders   []Order `gorm:"foreignKey:UserID" json:"orders,omitempty"`
}
