// Package repository defines per-entity persistence interfaces and their
// GORM implementations. Services depend on these interfaces only, so tests
// run against the in-memory fakes in memory.go.
package repository

import (
	"context"
	"time"

	"sportsreg_app/internal/models"
)

// Store bundles the entity repositories behind one handle. Atomically runs
// fn inside a single database transaction; every repository obtained from
// the Store passed to fn operates on that transaction.
type Store interface {
	Users() UserRepo
	Children() ChildRepo
	Catalog() CatalogRepo
	Orders() OrderRepo
	Discounts() DiscountRepo
	Scholarships() ScholarshipRepo
	Enrollments() EnrollmentRepo
	Payments() PaymentRepo
	Plans() PlanRepo
	Events() EventRepo

	Atomically(ctx context.Context, fn func(tx Store) error) error
}

type UserRepo interface {
	Get(ctx context.Context, id uint) (*models.User, error)
}

type ChildRepo interface {
	Get(ctx context.Context, id uint) (*models.Child, error)
}

type CatalogRepo interface {
	GetClass(ctx context.Context, id uint) (*models.Class, error)
	ListClasses(ctx context.Context) ([]models.Class, error)
	// ReserveSeat increments the enrolled counter only while it is below
	// capacity; a full class returns CapacityExceededError. The increment
	// is a single conditional UPDATE, never read-check-write.
	ReserveSeat(ctx context.Context, classID uint) error
	// ReleaseSeats gives back n reserved seats, e.g. on cancellation.
	ReleaseSeats(ctx context.Context, classID uint, n int) error
}

type OrderRepo interface {
	Create(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, id uint) (*models.Order, error)
	GetByUUID(ctx context.Context, uuid string) (*models.Order, error)
	// GetByUUIDForUpdate takes a row lock; only meaningful inside
	// Atomically.
	GetByUUIDForUpdate(ctx context.Context, uuid string) (*models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	ListByUser(ctx context.Context, userID uint) ([]models.Order, error)
}

type DiscountRepo interface {
	GetByCode(ctx context.Context, code string) (*models.DiscountCode, error)
	CountUserUses(ctx context.Context, codeID, userID uint) (int, error)
	// Consume atomically increments the usage counter while the global cap
	// holds and records the per-user redemption, with the per-user cap
	// enforced inside the same write. Returns ConflictError when either cap
	// is already exhausted.
	Consume(ctx context.Context, codeID, userID, orderID uint) error
}

type ScholarshipRepo interface {
	ListActiveForUser(ctx context.Context, userID uint, now time.Time) ([]models.Scholarship, error)
}

type EnrollmentRepo interface {
	CreateBatch(ctx context.Context, enrollments []models.Enrollment) error
	ListByOrder(ctx context.Context, orderID uint) ([]models.Enrollment, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Enrollment, error)
	Update(ctx context.Context, enrollment *models.Enrollment) error
	HasActive(ctx context.Context, childID, classID uint) (bool, error)
}

type PaymentRepo interface {
	Create(ctx context.Context, payment *models.Payment) error
	Get(ctx context.Context, id uint) (*models.Payment, error)
	GetForUpdate(ctx context.Context, id uint) (*models.Payment, error)
	GetByExternalRef(ctx context.Context, ref string) (*models.Payment, error)
	GetByExternalRefForUpdate(ctx context.Context, ref string) (*models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
	// ListStalePending returns pending payments created before the cutoff,
	// for the sweep job.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]models.Payment, error)
}

type PlanRepo interface {
	Create(ctx context.Context, plan *models.InstallmentPlan) error
	Get(ctx context.Context, id uint) (*models.InstallmentPlan, error)
	GetForUpdate(ctx context.Context, id uint) (*models.InstallmentPlan, error)
	GetByScheduleRef(ctx context.Context, ref string) (*models.InstallmentPlan, error)
	Update(ctx context.Context, plan *models.InstallmentPlan) error
	// HasActiveForOrder reports whether the order already carries an active
	// plan, so a second schedule is never opened for the same balance.
	HasActiveForOrder(ctx context.Context, orderID uint) (bool, error)

	GetInstallment(ctx context.Context, planID uint, number int) (*models.InstallmentPayment, error)
	NextPendingInstallment(ctx context.Context, planID uint) (*models.InstallmentPayment, error)
	UpdateInstallment(ctx context.Context, ip *models.InstallmentPayment) error
	CountPendingInstallments(ctx context.Context, planID uint) (int, error)
	// SkipPendingInstallments marks every still-pending slot skipped, used
	// when a plan is cancelled. Paid slots are untouched.
	SkipPendingInstallments(ctx context.Context, planID uint) error
	// InstallmentsDueBetween feeds the reminder task.
	InstallmentsDueBetween(ctx context.Context, from, to time.Time) ([]models.InstallmentPayment, error)
}

type EventRepo interface {
	// MarkProcessed inserts the event id, returning false when it was
	// already recorded. The unique index is the idempotency barrier.
	MarkProcessed(ctx context.Context, eventID string, now time.Time) (bool, error)
	SaveCallback(ctx context.Context, cb *models.GatewayCallback) error
}
