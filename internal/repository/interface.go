package repository

import (
	"context"
	"time"

	"github.com/weiawesome/peercast/internal/domain"
)

// JournalRepository persists the lifecycle history of sessions. The live
// registry is never rebuilt from it.
type JournalRepository interface {
	Append(ctx context.Context, event *domain.LifecycleEvent) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.LifecycleEvent, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
