package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InstallmentFrequency is the spacing of installments in calendar days.
// Monthly is a flat 30 days, not "same day next month"; simplest and most
// predictable for families.
type InstallmentFrequency string

const (
	FrequencyWeekly   InstallmentFrequency = "weekly"
	FrequencyBiweekly InstallmentFrequency = "biweekly"
	FrequencyMonthly  InstallmentFrequency = "monthly"
)

// IntervalDays returns the calendar-day spacing for the frequency.
func (f InstallmentFrequency) IntervalDays() int {
	switch f {
	case FrequencyWeekly:
		return 7
	case FrequencyBiweekly:
		return 14
	case FrequencyMonthly:
		return 30
	}
	return 0
}

// InstallmentPlanStatus represents the state of a plan
type InstallmentPlanStatus string

const (
	PlanStatusActive    InstallmentPlanStatus = "active"
	PlanStatusCompleted InstallmentPlanStatus = "completed"
	PlanStatusCancelled InstallmentPlanStatus = "cancelled"
	PlanStatusDefaulted InstallmentPlanStatus = "defaulted"
)

// Terminal reports whether the plan can no longer change state.
func (s InstallmentPlanStatus) Terminal() bool {
	return s == PlanStatusCompleted || s == PlanStatusCancelled || s == PlanStatusDefaulted
}

// InstallmentPlan is a schedule of N payments for one order. The sum of all
// installment amounts equals TotalAmount exactly; any rounding remainder
// from the equal split lands on the final installment.
type InstallmentPlan struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderID uint                  `gorm:"index" json:"order_id"`
	Status  InstallmentPlanStatus `gorm:"type:varchar(20);index" json:"status"`

	TotalAmount       decimal.Decimal      `gorm:"type:decimal(12,2)" json:"total_amount"`
	NumInstallments   int                  `json:"num_installments"`
	InstallmentAmount decimal.Decimal      `gorm:"type:decimal(12,2)" json:"installment_amount"`
	Frequency         InstallmentFrequency `gorm:"type:varchar(20)" json:"frequency"`
	StartDate         time.Time            `json:"start_date"`

	ExternalScheduleRef string `gorm:"type:varchar(100);index" json:"external_schedule_ref"`

	// Relationships
	Order        Order                `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	Installments []InstallmentPayment `gorm:"foreignKey:PlanID" json:"installments,omitempty"`
}

// InstallmentPaymentStatus represents the state of one scheduled slot
type InstallmentPaymentStatus string

const (
	InstallmentStatusPending InstallmentPaymentStatus = "pending"
	InstallmentStatusPaid    InstallmentPaymentStatus = "paid"
	InstallmentStatusFailed  InstallmentPaymentStatus = "failed"
	InstallmentStatusSkipped InstallmentPaymentStatus = "skipped"
)

// InstallmentPayment is one scheduled slot within a plan. Numbers are
// 1-indexed and unique within the plan; due dates strictly increase with the
// number.
type InstallmentPayment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	PlanID            uint                     `gorm:"index:idx_plan_number,priority:1" json:"plan_id"`
	InstallmentNumber int                      `gorm:"index:idx_plan_number,priority:2,unique" json:"installment_number"`
	Status            InstallmentPaymentStatus `gorm:"type:varchar(20);index" json:"status"`

	DueDate      time.Time       `json:"due_date"`
	Amount       decimal.Decimal `gorm:"type:decimal(12,2)" json:"amount"`
	AttemptCount int             `gorm:"default:0" json:"attempt_count"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`

	// Relationships
	Plan InstallmentPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}
