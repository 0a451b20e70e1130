package events

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/weiawesome/peercast/internal/domain"
	pkglog "github.com/weiawesome/peercast/pkg/log"
)

const sinkTimeout = 5 * time.Second

// Sink receives lifecycle events. Failures are logged and never reach the
// signaling path.
type Sink interface {
	Name() string
	Record(ctx context.Context, event *domain.LifecycleEvent) error
}

type funcSink struct {
	name string
	fn   func(context.Context, *domain.LifecycleEvent) error
}

func (s funcSink) Name() string { return s.name }

func (s funcSink) Record(ctx context.Context, event *domain.LifecycleEvent) error {
	return s.fn(ctx, event)
}

// SinkFunc adapts a function into a named Sink.
func SinkFunc(name string, fn func(context.Context, *domain.LifecycleEvent) error) Sink {
	return funcSink{name: name, fn: fn}
}

// Dispatcher moves lifecycle events off the signaling path and fans them out
// to sinks from a single worker, preserving emission order.
type Dispatcher struct {
	sinks   []Sink
	queue   chan *domain.LifecycleEvent
	dropped atomic.Uint64
	done    chan struct{}
	logger  zerolog.Logger
	now     func() time.Time
}

// NewDispatcher creates a dispatcher with a bounded queue.
func NewDispatcher(buffer int, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Dispatcher{
		sinks:  sinks,
		queue:  make(chan *domain.LifecycleEvent, buffer),
		done:   make(chan struct{}),
		logger: pkglog.L().With().Str(pkglog.FieldComponent, "events").Logger(),
		now:    time.Now,
	}
}

// Emit queues an event without blocking. When the queue is full the event is
// dropped and counted.
func (d *Dispatcher) Emit(event *domain.LifecycleEvent) {
	if len(d.sinks) == 0 || event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.now().UTC()
	}

	select {
	case d.queue <- event:
	default:
		d.dropped.Add(1)
		d.logger.Warn().
			Str(pkglog.FieldEventType, event.Type).
			Str(pkglog.FieldSessionID, event.SessionID).
			Msg("event queue full, lifecycle event dropped")
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is
// already queued and returns.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case event := <-d.queue:
			d.deliver(ctx, event)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(context.Background(), event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(parent context.Context, event *domain.LifecycleEvent) {
	if parent.Err() != nil {
		parent = context.Background()
	}
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(parent, sinkTimeout)
		err := sink.Record(ctx, event)
		cancel()
		if err != nil {
			d.logger.Warn().Err(err).
				Str("sink", sink.Name()).
				Str(pkglog.FieldEventType, event.Type).
				Str(pkglog.FieldSessionID, event.SessionID).
				Msg("failed to record lifecycle event (non-critical)")
		}
	}
}
