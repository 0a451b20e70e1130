package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/peercast/pkg/config"
	"github.com/weiawesome/peercast/pkg/database"
	pkglog "github.com/weiawesome/peercast/pkg/log"
	"github.com/weiawesome/peercast/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Signaling SignalingConfig
	Sessions  SessionsConfig
	Token     TokenConfig
	Events    EventsConfig
	PubSub    pubsub.Config
	Kafka     KafkaConfig
	Journal   JournalConfig
	Log       pkglog.Config
}

type ServerConfig struct {
	Host            string
	Port            int
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type SignalingConfig struct {
	// RequirePublishToken makes publisher_join present the token issued at creation.
	RequirePublishToken bool `mapstructure:"require_publish_token"`
	// PublisherTakeover lets a second publisher replace the first instead of being rejected.
	PublisherTakeover bool `mapstructure:"publisher_takeover"`
}

type SessionsConfig struct {
	CodeLength     int  `mapstructure:"code_length"`
	ListingEnabled bool `mapstructure:"listing_enabled"`
	MaxTitleLength int  `mapstructure:"max_title_length"`
}

type TokenConfig struct {
	Duration time.Duration
	Issuer   string
}

type EventsConfig struct {
	Buffer int
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

// JournalConfig enables the lifecycle journal. Rows older than Retention are
// purged; zero keeps them forever.
type JournalConfig struct {
	Enabled         bool
	Retention       time.Duration `mapstructure:"retention"`
	database.Config `mapstructure:",squash"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config",
		pkgconfig.WithConfigFile(pkgconfig.GetEnv("CONFIG_FILE", "")))
	if err != nil {
		return nil, err
	}

	setDefaults(v)
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Server.ShutdownTimeout = parseDuration(v, "server.shutdown_timeout", 10*time.Second)
	cfg.Token.Duration = parseDuration(v, "token.duration", 12*time.Hour)
	cfg.Journal.Retention = parseDuration(v, "journal.retention", 7*24*time.Hour)
	cfg.PubSub.Redis.ReadTimeout = parseDuration(v, "pubsub.redis.read_timeout", 3*time.Second)
	cfg.PubSub.Redis.WriteTimeout = parseDuration(v, "pubsub.redis.write_timeout", 3*time.Second)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("signaling.require_publish_token", false)
	v.SetDefault("signaling.publisher_takeover", false)
	v.SetDefault("sessions.code_length", 6)
	v.SetDefault("sessions.listing_enabled", false)
	v.SetDefault("sessions.max_title_length", 200)
	v.SetDefault("token.duration", "12h")
	v.SetDefault("token.issuer", "peercast")
	v.SetDefault("events.buffer", 1024)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.driver", "redis")
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.redis.password", "")
	v.SetDefault("pubsub.redis.db", 0)
	v.SetDefault("pubsub.redis.pool_size", 10)
	v.SetDefault("pubsub.redis.read_timeout", "3s")
	v.SetDefault("pubsub.redis.write_timeout", "3s")
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "peercast")
	v.SetDefault("pubsub.kafka.partitions", 4)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "session-events")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.retention", "168h")
	v.SetDefault("journal.driver", "sqlite")
	v.SetDefault("journal.host", "localhost")
	v.SetDefault("journal.port", 5432)
	v.SetDefault("journal.user", "postgres")
	v.SetDefault("journal.password", "postgres")
	v.SetDefault("journal.dbname", "peercast")
	v.SetDefault("journal.sslmode", "disable")
	v.SetDefault("journal.file_path", "./data/journal.db")
	v.SetDefault("journal.max_idle_conns", 5)
	v.SetDefault("journal.max_open_conns", 20)
	v.SetDefault("journal.conn_max_lifetime", 60)
	v.SetDefault("journal.log_level", "silent")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "peercast")
}

func bindEnv(v *viper.Viper) {
	v.BindEnv("server.port", "PORT")
	v.BindEnv("signaling.require_publish_token", "REQUIRE_PUBLISH_TOKEN")
	v.BindEnv("signaling.publisher_takeover", "PUBLISHER_TAKEOVER")
	v.BindEnv("sessions.listing_enabled", "SESSION_LISTING_ENABLED")
	v.BindEnv("pubsub.enabled", "PUBSUB_ENABLED")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.redis.address", "REDIS_ADDRESS")
	v.BindEnv("pubsub.redis.password", "REDIS_PASSWORD")
	v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("pubsub.kafka.group_id", "KAFKA_PUBSUB_GROUP_ID")
	v.BindEnv("kafka.enabled", "KAFKA_EVENTS_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_EVENTS_TOPIC")
	v.BindEnv("journal.enabled", "JOURNAL_ENABLED")
	v.BindEnv("journal.driver", "DB_DRIVER")
	v.BindEnv("journal.host", "DB_HOST")
	v.BindEnv("journal.port", "DB_PORT")
	v.BindEnv("journal.user", "DB_USER")
	v.BindEnv("journal.password", "DB_PASSWORD")
	v.BindEnv("journal.dbname", "DB_NAME")
	v.BindEnv("journal.file_path", "DB_FILE_PATH")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.pretty", "LOG_PRETTY")
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return defaultVal
	}
	return d
}
