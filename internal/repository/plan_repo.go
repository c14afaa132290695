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

type planRepo struct {
	db *gorm.DB
}

func (r *planRepo) Create(ctx context.Context, plan *models.InstallmentPlan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *planRepo) Get(ctx context.Context, id uint) (*models.InstallmentPlan, error) {
	return r.get(ctx, id, false)
}

func (r *planRepo) GetForUpdate(ctx context.Context, id uint) (*models.InstallmentPlan, error) {
	return r.get(ctx, id, true)
}

func (r *planRepo) get(ctx context.Context, id uint, lock bool) (*models.InstallmentPlan, error) {
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p models.InstallmentPlan
	if err := q.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperrors.NotFoundError{Resource: "installment plan", ID: fmt.Sprint(id)}
		}
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("plan_id = ?", p.ID).
		Order("installment_number").Find(&p.Installments).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *planRepo) HasActiveForOrder(ctx context.Context, orderID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.InstallmentPlan{}).
		Where("order_id = ? AND status = ?", orderID, models.PlanStatusActive).
		Count(&n).Error
	return n > 0, err
}

func (r *planRepo) GetByScheduleRef(ctx context.Context, ref string) (*models.InstallmentPlan, error) {
	var p models.InstallmentPlan
	err := r.db.WithContext(ctx).Where("external_schedule_ref = ?", ref).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperrors.NotFoundError{Resource: "installment plan", ID: ref}
		}
		return nil, err
	}
	return &p, nil
}

func (r *planRepo) Update(ctx context.Context, plan *models.InstallmentPlan) error {
	return r.db.WithContext(ctx).Omit("Order", "Installments").Save(plan).Error
}

func (r *planRepo) GetInstallment(ctx context.Context, planID uint, number int) (*models.InstallmentPayment, error) {
	var ip models.InstallmentPayment
	err := r.db.WithContext(ctx).
		Where("plan_id = ? AND installment_number = ?", planID, number).First(&ip).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperrors.NotFoundError{Resource: "installment", ID: fmt.Sprintf("%d/%d", planID, number)}
		}
		return nil, err
	}
	return &ip, nil
}

func (r *planRepo) NextPendingInstallment(ctx context.Context, planID uint) (*models.InstallmentPayment, error) {
	var ip models.InstallmentPayment
	err := r.db.WithContext(ctx).
		Where("plan_id = ? AND status = ?", planID, models.InstallmentStatusPending).
		Order("installment_number").First(&ip).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperrors.NotFoundError{Resource: "pending installment", ID: fmt.Sprint(planID)}
		}
		return nil, err
	}
	return &ip, nil
}

func (r *planRepo) UpdateInstallment(ctx context.Context, ip *models.InstallmentPayment) error {
	return r.db.WithContext(ctx).Omit("Plan").Save(ip).Error
}

func (r *planRepo) CountPendingInstallments(ctx context.Context, planID uint) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.InstallmentPayment{}).
		Where("plan_id = ? AND status = ?", planID, models.InstallmentStatusPending).
		Count(&n).Error
	return int(n), err
}

func (r *planRepo) SkipPendingInstallments(ctx context.Context, planID uint) error {
	return r.db.WithContext(ctx).Model(&models.InstallmentPayment{}).
		Where("plan_id = ? AND status = ?", planID, models.InstallmentStatusPending).
		UpdateColumn("status", models.InstallmentStatusSkipped).Error
}

func (r *planRepo) InstallmentsDueBetween(ctx context.Context, from, to time.Time) ([]models.InstallmentPayment, error) {
	var due []models.InstallmentPayment
	err := r.db.WithContext(ctx).Preload("Plan").
		Where("status = ? AND due_date >= ? AND due_date < ?", models.InstallmentStatusPending, from, to).
		Order("due_date").Find(&due).Error
	return due, err
}
