package kafka

import (
	"context"

	"github.com/weiawesome/peercast/internal/domain"
)

// LifecycleEventProducer streams session lifecycle events to Kafka.
type LifecycleEventProducer interface {
	ProduceLifecycleEvent(ctx context.Context, event *domain.LifecycleEvent) error
	Close() error
}
