package events

import (
	"context"
	"fmt"

	"github.com/weiawesome/peercast/internal/domain"
	"github.com/weiawesome/peercast/pkg/pubsub"
)

// PubSubSink publishes lifecycle events on the session's observer channel.
type PubSubSink struct {
	publisher pubsub.Publisher
}

// NewPubSubSink creates a sink over a pubsub publisher.
func NewPubSubSink(publisher pubsub.Publisher) *PubSubSink {
	return &PubSubSink{publisher: publisher}
}

func (s *PubSubSink) Name() string { return "pubsub" }

func (s *PubSubSink) Record(ctx context.Context, event *domain.LifecycleEvent) error {
	evt, err := pubsub.NewEvent(event.Type, event.SessionID, pubsub.LifecyclePayload{
		SessionID:    event.SessionID,
		Code:         event.Code,
		ConnectionID: event.ConnectionID,
		Reason:       event.Reason,
		Recipients:   event.Recipients,
	})
	if err != nil {
		return fmt.Errorf("failed to build pubsub event: %w", err)
	}
	evt.Timestamp = event.OccurredAt

	if err := s.publisher.Publish(ctx, pubsub.SignalToObserversChannel(event.SessionID), evt); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}
