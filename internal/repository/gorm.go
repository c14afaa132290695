package repository

import (
	"context"

	"gorm.io/gorm"
)

// gormStore implements Store on a *gorm.DB handle. The same type serves both
// the root connection and transaction scopes.
type gormStore struct {
	db *gorm.DB
}

// NewStore wraps a GORM handle in a Store.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Users() UserRepo               { return &userRepo{db: s.db} }
func (s *gormStore) Children() ChildRepo           { return &childRepo{db: s.db} }
func (s *gormStore) Catalog() CatalogRepo          { return &catalogRepo{db: s.db} }
func (s *gormStore) Orders() OrderRepo             { return &orderRepo{db: s.db} }
func (s *gormStore) Discounts() DiscountRepo       { return &discountRepo{db: s.db} }
func (s *gormStore) Scholarships() ScholarshipRepo { return &scholarshipRepo{db: s.db} }
func (s *gormStore) Enrollments() EnrollmentRepo   { return &enrollmentRepo{db: s.db} }
func (s *gormStore) Payments() PaymentRepo         { return &paymentRepo{db: s.db} }
func (s *gormStore) Plans() PlanRepo               { return &planRepo{db: s.db} }
func (s *gormStore) Events() EventRepo             { return &eventRepo{db: s.db} }

func (s *gormStore) Atomically(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(txdb *gorm.DB) error {
		return fn(&gormStore{db: txdb})
	})
}
