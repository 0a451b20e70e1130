package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	pkglog "github.com/weiawesome/peercast/pkg/log"
)

// RedisPubSub carries lifecycle and control events over Redis pub/sub.
// Channel names are used as-is; patterns go through PSUBSCRIBE.
type RedisPubSub struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[string]*redis.PubSub
}

// NewRedisPubSub connects to Redis and pings it before returning.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}

	return &RedisPubSub{client: client, subs: make(map[string]*redis.PubSub)}, nil
}

// Publish JSON-encodes the event onto channel.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe listens on one channel.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return r.subscribe(ctx, channel, false)
}

// SubscribePattern listens on every channel matching a glob pattern.
func (r *RedisPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return r.subscribe(ctx, pattern, true)
}

func (r *RedisPubSub) subscribe(ctx context.Context, key string, pattern bool) (<-chan *Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.subs[key]; ok {
		_ = existing.Close()
		delete(r.subs, key)
	}

	var sub *redis.PubSub
	if pattern {
		sub = r.client.PSubscribe(ctx, key)
	} else {
		sub = r.client.Subscribe(ctx, key)
	}
	// The first Receive confirms the subscription before any publish can race it.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", key, err)
	}
	r.subs[key] = sub

	eventCh := make(chan *Event, subscriberBuffer)
	go r.pump(ctx, key, sub, eventCh)
	return eventCh, nil
}

// Unsubscribe closes the subscription registered under channel, if any.
func (r *RedisPubSub) Unsubscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[channel]
	if !ok {
		return nil
	}
	delete(r.subs, channel)
	return sub.Close()
}

// Close ends every subscription, then the client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	for key, sub := range r.subs {
		_ = sub.Close()
		delete(r.subs, key)
	}
	r.mu.Unlock()

	return r.client.Close()
}

func (r *RedisPubSub) pump(ctx context.Context, key string, sub *redis.PubSub, eventCh chan<- *Event) {
	defer close(eventCh)
	l := pkglog.L().With().Str(pkglog.FieldComponent, "pubsub.redis").Str("subscription", key).Logger()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if !forward(ctx, l, []byte(msg.Payload), eventCh) {
				return
			}
		}
	}
}
