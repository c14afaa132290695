package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sportsreg_app/internal/apperrors"
	"sportsreg_app/internal/models"
)

type orderRepo struct {
	db *gorm.DB
}

func (r *orderRepo) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepo) Get(ctx context.Context, id uint) (*models.Order, error) {
	var o models.Order
	err := r.db.WithContext(ctx).Preload("LineItems").First(&o, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperrors.NotFoundError{Resource: "order", ID: fmt.Sprint(id)}
		}
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) GetByUUID(ctx context.Context, uuid string) (*models.Order, error) {
	return r.getByUUID(ctx, uuid, false)
}

func (r *orderRepo) GetByUUIDForUpdate(ctx context.Context, uuid string) (*models.Order, error) {
	return r.getByUUID(ctx, uuid, true)
}

func (r *orderRepo) getByUUID(ctx context.Context, uuid string, lock bool) (*models.Order, error) {
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var o models.Order
	if err := q.Where("uuid = ?", uuid).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperrors.NotFoundError{Resource: "order", ID: uuid}
		}
		return nil, err
	}
	// Locking clauses cannot be combined with Preload, so fetch the line
	// items separately.
	if err := r.db.WithContext(ctx).Where("order_id = ?", o.ID).Order("id").Find(&o.LineItems).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) Update(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("LineItems", "Payments", "User").Save(order).Error
}

func (r *orderRepo) ListByUser(ctx context.Context, userID uint) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).Preload("LineItems").
		Where("user_id = ?", userID).Order("created_at desc").Find(&orders).Error
	return orders, err
}
