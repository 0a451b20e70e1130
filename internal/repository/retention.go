package repository

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiawesome/peercast/pkg/log"
)

// RunRetention purges journal rows older than retention, once at start and
// then every interval, until ctx is cancelled. A non-positive retention
// disables purging.
func RunRetention(ctx context.Context, repo JournalRepository, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	l := log.L().With().Str(log.FieldComponent, "journal").Logger()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		purge(ctx, repo, retention, l)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func purge(ctx context.Context, repo JournalRepository, retention time.Duration, l zerolog.Logger) {
	cutoff := time.Now().UTC().Add(-retention)
	n, err := repo.PurgeBefore(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			l.Error().Err(err).Msg("failed to purge session events")
		}
		return
	}
	if n > 0 {
		l.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("old session events purged")
	}
}
