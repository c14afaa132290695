package repository

import (
	"context"

	"gorm.io/gorm"

	"sportsreg_app/internal/models"
)

type enrollmentRepo struct {
	db *gorm.DB
}

func (r *enrollmentRepo) CreateBatch(ctx context.Context, enrollments []models.Enrollment) error {
	if len(enrollments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&enrollments).Error
}

func (r *enrollmentRepo) ListByOrder(ctx context.Context, orderID uint) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := r.db.WithContext(ctx).
		Joins("JOIN order_line_items ON order_line_items.id = enrollments.order_line_item_id").
		Where("order_line_items.order_id = ?", orderID).
		Find(&enrollments).Error
	return enrollments, err
}

func (r *enrollmentRepo) ListByUser(ctx context.Context, userID uint) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := r.db.WithContext(ctx).Preload("Child").Preload("Class").
		Joins("JOIN children ON children.id = enrollments.child_id").
		Where("children.user_id = ?", userID).
		Order("enrollments.created_at desc").
		Find(&enrollments).Error
	return enrollments, err
}

func (r *enrollmentRepo) Update(ctx context.Context, enrollment *models.Enrollment) error {
	return r.db.WithContext(ctx).Omit("Child", "Class").Save(enrollment).Error
}

func (r *enrollmentRepo) HasActive(ctx context.Context, childID, classID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("child_id = ? AND class_id = ? AND status IN ?",
			childID, classID,
			[]models.EnrollmentStatus{models.EnrollmentStatusPending, models.EnrollmentStatusActive}).
		Count(&n).Error
	return n > 0, err
}
