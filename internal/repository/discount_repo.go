package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"sportsreg_app/internal/apperrors"
	"sportsreg_app/internal/models"
)

type discountRepo struct {
	db *gorm.DB
}

func (r *discountRepo) GetByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	var dc models.DiscountCode
	err := r.db.WithContext(ctx).Where("code = ?", models.NormalizeCode(code)).First(&dc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperrors.NotFoundError{Resource: "discount code", ID: code}
		}
		return nil, err
	}
	return &dc, nil
}

func (r *discountRepo) CountUserUses(ctx context.Context, codeID, userID uint) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.DiscountCodeUsage{}).
		Where("discount_code_id = ? AND user_id = ?", codeID, userID).Count(&n).Error
	return int(n), err
}

// Consume increments the usage counter with the global cap folded into the
// WHERE clause, so racing redemptions of the last slot serialize at the
// database and exactly one wins. The UPDATE row-locks the code for the rest
// of the transaction, which makes the per-user count in the conditional
// INSERT below accurate: a racing transaction blocks on the lock and sees
// this one's usage row once it commits.
func (r *discountRepo) Consume(ctx context.Context, codeID, userID, orderID uint) error {
	res := r.db.WithContext(ctx).Model(&models.DiscountCode{}).
		Where("id = ? AND (max_uses IS NULL OR current_uses < max_uses)", codeID).
		UpdateColumn("current_uses", gorm.Expr("current_uses + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &apperrors.ConflictError{Reason: "discount code has reached its usage limit"}
	}

	ins := r.db.WithContext(ctx).Exec(`
		INSERT INTO discount_code_usages (discount_code_id, user_id, order_id, created_at)
		SELECT ?, ?, ?, ?
		FROM discount_codes dc
		WHERE dc.id = ?
		  AND (dc.max_uses_per_user IS NULL
		       OR (SELECT count(*) FROM discount_code_usages u
		           WHERE u.discount_code_id = dc.id AND u.user_id = ?) < dc.max_uses_per_user)`,
		codeID, userID, orderID, time.Now(), codeID, userID)
	if ins.Error != nil {
		return ins.Error
	}
	if ins.RowsAffected == 0 {
		return &apperrors.ConflictError{Reason: "discount code already used the maximum number of times by this user"}
	}
	return nil
}

type scholarshipRepo struct {
	db *gorm.DB
}

func (r *scholarshipRepo) ListActiveForUser(ctx context.Context, userID uint, now time.Time) ([]models.Scholarship, error) {
	var all []models.Scholarship
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Find(&all).Error
	if err != nil {
		return nil, err
	}
	// Window checks in Go keep the now injectable for tests.
	active := all[:0]
	for _, s := range all {
		if s.ActiveAt(now) {
			active = append(active, s)
		}
	}
	return active, nil
}
