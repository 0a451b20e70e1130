package repository

import (
	"time"

	"github.com/weiawesome/peercast/internal/domain"
)

// SessionEventModel is the GORM model for the session_events table.
type SessionEventModel struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"`
	SessionID    string    `gorm:"type:varchar(36);index:idx_session_events_session;not null"`
	Code         string    `gorm:"type:varchar(32);index"`
	Type         string    `gorm:"type:varchar(32);not null"`
	ConnectionID string    `gorm:"type:varchar(36)"`
	Reason       string    `gorm:"type:varchar(64)"`
	Recipients   int       `gorm:"default:0"`
	OccurredAt   time.Time `gorm:"index:idx_session_events_session;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for SessionEventModel.
func (SessionEventModel) TableName() string {
	return "session_events"
}

// ToDomain converts the row to a lifecycle event.
func (m *SessionEventModel) ToDomain() domain.LifecycleEvent {
	return domain.LifecycleEvent{
		ID:           m.ID,
		Type:         m.Type,
		SessionID:    m.SessionID,
		Code:         m.Code,
		ConnectionID: m.ConnectionID,
		Reason:       m.Reason,
		Recipients:   m.Recipients,
		OccurredAt:   m.OccurredAt.UTC(),
	}
}

// EventToModel converts a lifecycle event to a row.
func EventToModel(e *domain.LifecycleEvent) *SessionEventModel {
	return &SessionEventModel{
		ID:           e.ID,
		SessionID:    e.SessionID,
		Code:         e.Code,
		Type:         e.Type,
		ConnectionID: e.ConnectionID,
		Reason:       e.Reason,
		Recipients:   e.Recipients,
		OccurredAt:   e.OccurredAt,
	}
}
