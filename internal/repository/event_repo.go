package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sportsreg_app/internal/models"
)

type eventRepo struct {
	db *gorm.DB
}

// MarkProcessed relies on the unique index on event_id: a conflicting insert
// affects zero rows, which tells the reconciler the event was already
// applied.
func (r *eventRepo) MarkProcessed(ctx context.Context, eventID string, now time.Time) (bool, error) {
	rec := models.ProcessedEvent{EventID: eventID, ProcessedAt: now}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *eventRepo) SaveCallback(ctx context.Context, cb *models.GatewayCallback) error {
	return r.db.WithContext(ctx).Create(cb).Error
}
