package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/peercast/internal/domain"
	"github.com/weiawesome/peercast/pkg/pubsub"
)

type recordingSink struct {
	mu     sync.Mutex
	events []*domain.LifecycleEvent
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Record(_ context.Context, e *domain.LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

func TestDispatcherDeliversInOrderToAllSinks(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("boom")}
	d := NewDispatcher(16, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	d.Emit(&domain.LifecycleEvent{Type: domain.EventSessionCreated, SessionID: "s1"})
	d.Emit(&domain.LifecycleEvent{Type: domain.EventSessionLive, SessionID: "s1"})
	d.Emit(&domain.LifecycleEvent{Type: domain.EventSessionDestroyed, SessionID: "s1"})

	want := []string{domain.EventSessionCreated, domain.EventSessionLive, domain.EventSessionDestroyed}
	require.Eventually(t, func() bool { return len(a.types()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, a.types())
	assert.Equal(t, want, b.types())

	cancel()
	<-d.Done()

	a.mu.Lock()
	defer a.mu.Unlock()
	assert.NotEmpty(t, a.events[0].ID)
	assert.False(t, a.events[0].OccurredAt.IsZero())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(1, sink)

	d.Emit(&domain.LifecycleEvent{Type: domain.EventSessionCreated, SessionID: "s1"})
	d.Emit(&domain.LifecycleEvent{Type: domain.EventSessionLive, SessionID: "s1"})
	assert.Equal(t, uint64(1), d.Dropped())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)
	assert.Equal(t, []string{domain.EventSessionCreated}, sink.types())
}

func TestDispatcherWithoutSinksIsNoop(t *testing.T) {
	d := NewDispatcher(1)
	for i := 0; i < 5; i++ {
		d.Emit(&domain.LifecycleEvent{Type: domain.EventSessionCreated})
	}
	assert.Zero(t, d.Dropped())
}

func TestSinkFunc(t *testing.T) {
	var got string
	s := SinkFunc("fn", func(_ context.Context, e *domain.LifecycleEvent) error {
		got = e.SessionID
		return nil
	})
	assert.Equal(t, "fn", s.Name())
	require.NoError(t, s.Record(context.Background(), &domain.LifecycleEvent{SessionID: "s9"}))
	assert.Equal(t, "s9", got)
}

func TestPubSubSinkPublishesOnObserverChannel(t *testing.T) {
	ps := pubsub.NewMemoryPubSub()
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := ps.Subscribe(ctx, pubsub.SignalToObserversChannel("s1"))
	require.NoError(t, err)

	sink := NewPubSubSink(ps)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Record(ctx, &domain.LifecycleEvent{
		Type:       domain.EventSessionDestroyed,
		SessionID:  "s1",
		Code:       "ABC123",
		Reason:     domain.ReasonClosed,
		OccurredAt: at,
	}))

	select {
	case evt := <-ch:
		assert.Equal(t, pubsub.EventSessionDestroyed, evt.Type)
		assert.Equal(t, "s1", evt.SessionID)
		assert.True(t, at.Equal(evt.Timestamp))
		var payload pubsub.LifecyclePayload
		require.NoError(t, evt.UnmarshalPayload(&payload))
		assert.Equal(t, "ABC123", payload.Code)
		assert.Equal(t, domain.ReasonClosed, payload.Reason)
	case <-time.After(time.Second):
		t.Fatal("event not published")
	}
}
