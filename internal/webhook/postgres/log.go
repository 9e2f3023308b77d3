package postgres

import (
	"context"
	"time"

	"github.com/frahmantamala/settlement/internal/core/datamodel/webhooklog"
	"gorm.io/gorm"
)

// LogRepository implements webhook.LogRepository using GORM
type LogRepository struct {
	db *gorm.DB
}

func NewLogRepository(db *gorm.DB) *LogRepository {
	return &LogRepository{db: db}
}

func (r *LogRepository) Append(ctx context.Context, l *webhooklog.Log) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *LogRepository) MarkProcessed(ctx context.Context, id int64, failure *string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&webhooklog.Log{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed":    failure == nil,
			"error":        failure,
			"processed_at": at,
		}).Error
}

func (r *LogRepository) ListByEvent(ctx context.Context, provider, eventID string) ([]webhooklog.Log, error) {
	var out []webhooklog.Log
	err := r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
