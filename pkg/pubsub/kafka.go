package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"

	pkglog "github.com/weiawesome/peercast/pkg/log"
)

// Each channel family in channels.go maps to one topic, keyed by session id.
var kafkaTopics = []string{"signal-to-observers", "control-to-signal"}

const (
	defaultKafkaGroup      = "peercast"
	defaultKafkaPartitions = 4
	kafkaPollMs            = 500
	kafkaFlushMs           = 5000
)

// channelToTopicAndKey splits a session channel into topic and message key.
//
//	"signal:session:S1:to_observers" → "signal-to-observers", "S1"
//	"control:session:S2:to_signal"   → "control-to-signal", "S2"
func channelToTopicAndKey(channel string) (topic, key string, err error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[1] != "session" || parts[2] == "" || !strings.HasPrefix(parts[3], "to_") {
		return "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	return parts[0] + "-" + strings.ReplaceAll(parts[3], "_", "-"), parts[2], nil
}

// patternToTopic accepts only patterns that wildcard the session segment.
//
//	"control:session:*:to_signal" → "control-to-signal"
func patternToTopic(pattern string) (string, error) {
	topic, key, err := channelToTopicAndKey(pattern)
	if err != nil {
		return "", err
	}
	if key != "*" {
		return "", fmt.Errorf("pattern must wildcard the session: %s", pattern)
	}
	return topic, nil
}

var groupIDRegexp = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func sanitizeGroupID(s string) string {
	return groupIDRegexp.ReplaceAllString(s, "-")
}

type kafkaSubscription struct {
	consumer *kafka.Consumer
	cancel   context.CancelFunc
}

func (s *kafkaSubscription) stop() error {
	s.cancel()
	return s.consumer.Close()
}

// KafkaPubSub maps session channels onto two keyed topics. A channel
// subscription filters by key; a pattern subscription reads the whole topic.
type KafkaPubSub struct {
	cfg      KafkaConfig
	producer *kafka.Producer
	reports  chan struct{}

	mu   sync.Mutex
	subs map[string]*kafkaSubscription
}

// NewKafkaPubSub creates the producer and makes sure both topics exist.
func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	if cfg.GroupID == "" {
		cfg.GroupID = defaultKafkaGroup
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = defaultKafkaPartitions
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	k := &KafkaPubSub{
		cfg:      cfg,
		producer: p,
		reports:  make(chan struct{}),
		subs:     make(map[string]*kafkaSubscription),
	}
	go k.watchDeliveries()

	if err := k.ensureTopics(); err != nil {
		l := pkglog.L()
		l.Warn().Err(err).Msg("could not ensure kafka pubsub topics")
	}
	return k, nil
}

func (k *KafkaPubSub) ensureTopics() error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{"bootstrap.servers": k.cfg.Brokers})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	specs := make([]kafka.TopicSpecification, len(kafkaTopics))
	for i, t := range kafkaTopics {
		specs[i] = kafka.TopicSpecification{Topic: t, NumPartitions: k.cfg.Partitions, ReplicationFactor: 1}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}
	l := pkglog.L()
	for _, r := range results {
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			l.Warn().Str("topic", r.Topic).Str("error", r.Error.String()).Msg("failed to create kafka topic")
		}
	}
	return nil
}

func (k *KafkaPubSub) watchDeliveries() {
	defer close(k.reports)
	l := pkglog.L().With().Str(pkglog.FieldComponent, "pubsub.kafka").Logger()
	for e := range k.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			l.Warn().Err(m.TopicPartition.Error).Str(pkglog.FieldSessionID, string(m.Key)).Msg("kafka pubsub delivery failed")
		}
	}
}

// Publish produces the event to the channel's topic, keyed by session id.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	topic, key, err := channelToTopicAndKey(channel)
	if err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          data,
	}
	if err := k.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce to %s: %w", topic, err)
	}
	return nil
}

// Subscribe reads one session's channel.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	topic, sessionID, err := channelToTopicAndKey(channel)
	if err != nil {
		return nil, err
	}
	// Channel subscribers get their own group so they do not split
	// partitions with the pattern subscriber on the same topic.
	group := k.cfg.GroupID + "-" + sanitizeGroupID(channel)
	return k.subscribe(ctx, channel, topic, group, sessionID)
}

// SubscribePattern reads every session on the pattern's topic.
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	topic, err := patternToTopic(pattern)
	if err != nil {
		return nil, err
	}
	return k.subscribe(ctx, pattern, topic, k.cfg.GroupID, "")
}

func (k *KafkaPubSub) subscribe(ctx context.Context, key, topic, group, sessionID string) (<-chan *Event, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if existing, ok := k.subs[key]; ok {
		_ = existing.stop()
		delete(k.subs, key)
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":       k.cfg.Brokers,
		"group.id":                group,
		"auto.offset.reset":       "latest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := c.Subscribe(topic, nil); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	k.subs[key] = &kafkaSubscription{consumer: c, cancel: cancel}

	l := pkglog.L().With().Str(pkglog.FieldComponent, "pubsub.kafka").Str("subscription", key).Logger()
	eventCh := make(chan *Event, subscriberBuffer)
	go k.poll(subCtx, l, c, sessionID, eventCh)
	return eventCh, nil
}

// poll forwards messages until ctx ends or the consumer hits a fatal error.
// A non-empty sessionID drops messages keyed for other sessions.
func (k *KafkaPubSub) poll(ctx context.Context, l zerolog.Logger, c *kafka.Consumer, sessionID string, eventCh chan<- *Event) {
	defer close(eventCh)

	for ctx.Err() == nil {
		switch e := c.Poll(kafkaPollMs).(type) {
		case *kafka.Message:
			if sessionID != "" && string(e.Key) != sessionID {
				continue
			}
			if !forward(ctx, l, e.Value, eventCh) {
				return
			}
		case kafka.Error:
			l.Error().Err(e).Int("code", int(e.Code())).Bool("fatal", e.IsFatal()).Msg("kafka consumer error")
			if e.IsFatal() {
				return
			}
		}
	}
}

// Unsubscribe stops the consumer registered under channel, if any.
func (k *KafkaPubSub) Unsubscribe(ctx context.Context, channel string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	sub, ok := k.subs[channel]
	if !ok {
		return nil
	}
	delete(k.subs, channel)
	if err := sub.stop(); err != nil {
		return fmt.Errorf("failed to close consumer: %w", err)
	}
	return nil
}

// Close stops every consumer, flushes pending events and closes the producer.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	for key, sub := range k.subs {
		_ = sub.stop()
		delete(k.subs, key)
	}
	k.mu.Unlock()

	if n := k.producer.Flush(kafkaFlushMs); n > 0 {
		l := pkglog.L()
		l.Warn().Int("pending", n).Msg("kafka pubsub closed with undelivered events")
	}
	k.producer.Close()
	<-k.reports
	return nil
}
