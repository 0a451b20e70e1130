package pubsub

import (
	"context"
	"path"
	"sync"
)

// memorySubscription is one channel or pattern subscription.
type memorySubscription struct {
	key     string
	pattern bool
	ch      chan *Event
	cancel  context.CancelFunc
}

// MemoryPubSub is an in-process PubSub for single-node deployments and tests.
// Delivery follows the Redis driver: non-blocking, dropped when a subscriber
// buffer is full.
type MemoryPubSub struct {
	mu            sync.RWMutex
	subscriptions map[string]*memorySubscription
}

// NewMemoryPubSub creates an in-process PubSub.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{subscriptions: make(map[string]*memorySubscription)}
}

// Publish delivers the event to every matching subscription.
func (m *MemoryPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscriptions {
		if !sub.matches(channel) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe subscribes to a specific channel.
func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return m.subscribe(ctx, channel, false)
}

// SubscribePattern subscribes to channels matching a glob pattern.
func (m *MemoryPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	return m.subscribe(ctx, pattern, true)
}

func (m *MemoryPubSub) subscribe(ctx context.Context, key string, pattern bool) (<-chan *Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.subscriptions[key]; ok {
		m.drop(existing)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &memorySubscription{key: key, pattern: pattern, ch: make(chan *Event, subscriberBuffer), cancel: cancel}
	m.subscriptions[key] = sub

	go func() {
		<-subCtx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if current, ok := m.subscriptions[key]; ok && current == sub {
			m.drop(sub)
		}
	}()

	return sub.ch, nil
}

// Unsubscribe removes a channel or pattern subscription.
func (m *MemoryPubSub) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	sub, ok := m.subscriptions[channel]
	if ok {
		m.drop(sub)
	}
	m.mu.Unlock()
	if ok {
		sub.cancel()
	}
	return nil
}

// Close removes every subscription.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	subs := make([]*memorySubscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
		m.drop(sub)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
	return nil
}

// drop must be called with m.mu held.
func (m *MemoryPubSub) drop(sub *memorySubscription) {
	delete(m.subscriptions, sub.key)
	close(sub.ch)
}

func (s *memorySubscription) matches(channel string) bool {
	if !s.pattern {
		return s.key == channel
	}
	ok, _ := path.Match(s.key, channel)
	return ok
}
