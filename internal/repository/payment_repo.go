package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sportsreg_app/internal/apperrors"
	"sportsreg_app/internal/models"
)

type paymentRepo struct {
	db *gorm.DB
}

func (r *paymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *paymentRepo) Get(ctx context.Context, id uint) (*models.Payment, error) {
	return r.get(ctx, id, false)
}

func (r *paymentRepo) GetForUpdate(ctx context.Context, id uint) (*models.Payment, error) {
	return r.get(ctx, id, true)
}

func (r *paymentRepo) get(ctx context.Context, id uint, lock bool) (*models.Payment, error) {
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p models.Payment
	if err := q.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperrors.NotFoundError{Resource: "payment", ID: fmt.Sprint(id)}
		}
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) GetByExternalRef(ctx context.Context, ref string) (*models.Payment, error) {
	return r.getByRef(ctx, ref, false)
}

func (r *paymentRepo) GetByExternalRefForUpdate(ctx context.Context, ref string) (*models.Payment, error) {
	return r.getByRef(ctx, ref, true)
}

func (r *paymentRepo) getByRef(ctx context.Context, ref string, lock bool) (*models.Payment, error) {
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p models.Payment
	if err := q.Where("external_ref = ?", ref).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperrors.NotFoundError{Resource: "payment", ID: ref}
		}
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) Update(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Omit("Order").Save(payment).Error
}

func (r *paymentRepo) ListStalePending(ctx context.Context, cutoff time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, cutoff).
		Find(&payments).Error
	return payments, err
}
