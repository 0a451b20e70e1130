package pubsub

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	pkglog "github.com/weiawesome/peercast/pkg/log"
)

// subscriberBuffer is the capacity of every channel returned by Subscribe.
const subscriberBuffer = 100

// forward decodes one wire message and hands it to a subscriber without
// blocking. It returns false once ctx is done.
func forward(ctx context.Context, l zerolog.Logger, data []byte, eventCh chan<- *Event) bool {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		l.Warn().Err(err).Msg("dropping undecodable event")
		return true
	}

	select {
	case eventCh <- &event:
	case <-ctx.Done():
		return false
	default:
		l.Warn().Str(pkglog.FieldEventType, event.Type).Str(pkglog.FieldSessionID, event.SessionID).Msg("subscriber buffer full, event dropped")
	}
	return true
}
