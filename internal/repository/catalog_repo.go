package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"sportsreg_app/internal/apperrors"
	"sportsreg_app/internal/models"
)

type userRepo struct {
	db *gorm.DB
}

func (r *userRepo) Get(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperrors.NotFoundError{Resource: "user", ID: fmt.Sprint(id)}
		}
		return nil, err
	}
	return &u, nil
}

type childRepo struct {
	db *gorm.DB
}

func (r *childRepo) Get(ctx context.Context, id uint) (*models.Child, error) {
	var c models.Child
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperrors.NotFoundError{Resource: "child", ID: fmt.Sprint(id)}
		}
		return nil, err
	}
	return &c, nil
}

type catalogRepo struct {
	db *gorm.DB
}

func (r *catalogRepo) GetClass(ctx context.Context, id uint) (*models.Class, error) {
	var cl models.Class
	if err := r.db.WithContext(ctx).First(&cl, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperrors.NotFoundError{Resource: "class", ID: fmt.Sprint(id)}
		}
		return nil, err
	}
	return &cl, nil
}

func (r *catalogRepo) ListClasses(ctx context.Context) ([]models.Class, error) {
	var classes []models.Class
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("start_date").Find(&classes).Error; err != nil {
		return nil, err
	}
	return classes, nil
}

// ReserveSeat is a single conditional UPDATE; two racing activations for the
// last seat cannot both pass.
func (r *catalogRepo) ReserveSeat(ctx context.Context, classID uint) error {
	res := r.db.WithContext(ctx).Model(&models.Class{}).
		Where("id = ? AND (capacity <= 0 OR enrolled < capacity)", classID).
		UpdateColumn("enrolled", gorm.Expr("enrolled + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		cl, err := r.GetClass(ctx, classID)
		if err != nil {
			return err
		}
		return &apperrors.CapacityExceededError{ClassID: classID, ClassName: cl.Name}
	}
	return nil
}

func (r *catalogRepo) ReleaseSeats(ctx context.Context, classID uint, n int) error {
	return r.db.WithContext(ctx).Model(&models.Class{}).
		Where("id = ? AND enrolled >= ?", classID, n).
		UpdateColumn("enrolled", gorm.Expr("enrolled - ?", n)).Error
}
