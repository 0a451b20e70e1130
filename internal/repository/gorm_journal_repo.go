package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiawesome/peercast/internal/domain"
	"github.com/weiawesome/peercast/pkg/database"
	"github.com/weiawesome/peercast/pkg/log"
)

const defaultListLimit = 100

// GormJournalRepository implements JournalRepository using GORM.
type GormJournalRepository struct {
	db *gorm.DB
}

// NewGormJournalRepository creates a journal and migrates its table.
func NewGormJournalRepository(db *gorm.DB) (*GormJournalRepository, error) {
	if err := database.AutoMigrate(db, &SessionEventModel{}); err != nil {
		return nil, err
	}
	return &GormJournalRepository{db: db}, nil
}

// Append stores one lifecycle event.
func (r *GormJournalRepository) Append(ctx context.Context, event *domain.LifecycleEvent) error {
	l := log.Ctx(ctx)

	model := EventToModel(event)
	if model.ID == "" {
		model.ID = uuid.New().String()
	}
	if model.OccurredAt.IsZero() {
		model.OccurredAt = time.Now().UTC()
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Str(log.FieldSessionID, event.SessionID).Msg("failed to append session event")
		return err
	}
	return nil
}

// ListBySession returns a session's events, oldest first.
func (r *GormJournalRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.LifecycleEvent, error) {
	l := log.Ctx(ctx)

	if limit < 1 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	var models []SessionEventModel
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("occurred_at ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		l.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to list session events")
		return nil, err
	}

	events := make([]domain.LifecycleEvent, 0, len(models))
	for i := range models {
		events = append(events, models[i].ToDomain())
	}
	return events, nil
}

// PurgeBefore deletes events older than cutoff.
func (r *GormJournalRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("occurred_at < ?", cutoff).Delete(&SessionEventModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
