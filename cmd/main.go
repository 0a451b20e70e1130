package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/weiawesome/peercast/internal/config"
	"github.com/weiawesome/peercast/internal/directory"
	"github.com/weiawesome/peercast/internal/events"
	"github.com/weiawesome/peercast/internal/handler"
	"github.com/weiawesome/peercast/internal/hub"
	"github.com/weiawesome/peercast/internal/kafka"
	"github.com/weiawesome/peercast/internal/registry"
	"github.com/weiawesome/peercast/internal/relay"
	"github.com/weiawesome/peercast/internal/repository"
	"github.com/weiawesome/peercast/internal/service"
	"github.com/weiawesome/peercast/pkg/database"
	"github.com/weiawesome/peercast/pkg/jwt"
	pkglog "github.com/weiawesome/peercast/pkg/log"
	"github.com/weiawesome/peercast/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting peercast")

	// Lifecycle event sinks, all optional
	var sinks []events.Sink

	var ps pubsub.PubSub
	if cfg.PubSub.Enabled {
		ps, err = pubsub.NewPubSub(cfg.PubSub)
		if err != nil {
			logger.Fatal().Err(err).Str("driver", cfg.PubSub.Driver).Msg("failed to initialize pubsub")
		}
		sinks = append(sinks, events.NewPubSubSink(ps))
		logger.Info().Str("driver", cfg.PubSub.Driver).Msg("pubsub connected")
	}

	var producer kafka.LifecycleEventProducer
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			// The service works without Kafka.
			logger.Warn().Err(err).Msg("failed to create kafka producer, lifecycle stream disabled")
			producer = nil
		} else {
			sinks = append(sinks, events.SinkFunc("kafka", producer.ProduceLifecycleEvent))
			logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")
		}
	}

	var db *gorm.DB
	var journal repository.JournalRepository
	if cfg.Journal.Enabled {
		db, err = database.New(&cfg.Journal.Config)
		if err != nil {
			logger.Fatal().Err(err).Str("driver", cfg.Journal.Driver).Msg("failed to connect to journal database")
		}
		repo, err := repository.NewGormJournalRepository(db)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate journal")
		}
		journal = repo
		sinks = append(sinks, events.SinkFunc("journal", repo.Append))
		logger.Info().Str("driver", cfg.Journal.Driver).Msg("session journal enabled")
	}

	dispatcher := events.NewDispatcher(cfg.Events.Buffer, sinks...)
	eventsCtx, stopEvents := context.WithCancel(context.Background())
	go dispatcher.Run(eventsCtx)

	// Core
	tokens, err := jwt.NewManager(cfg.Token.Duration, cfg.Token.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token manager")
	}

	reg := registry.New(registry.WithCodeLength(cfg.Sessions.CodeLength))
	dir := directory.New(reg)

	wsHub := hub.NewHub(cfg.WebSocket)
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		wsHub.Run(hubCtx)
		close(hubDone)
	}()

	engine := relay.NewEngine(wsHub, dir)

	var control pubsub.Subscriber
	if ps != nil {
		control = ps
	}
	signalSvc := service.NewSignalService(reg, dir, engine, tokens, dispatcher, control, cfg.Signaling)
	sessionSvc := service.NewSessionService(reg, signalSvc, tokens, journal, dispatcher, wsHub, cfg.Sessions)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := signalSvc.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start signal service")
	}

	if journal != nil {
		go repository.RunRetention(ctx, journal, cfg.Journal.Retention, time.Hour)
	}

	// HTTP
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	r.Use(handler.CORS(cfg.Server.AllowedOrigins))
	handler.NewHandler(sessionSvc).RegisterRoutes(r)

	mux := http.NewServeMux()
	handler.NewWSHandler(wsHub, signalSvc, cfg.Server.AllowedOrigins).RegisterRoutes(mux, pkglog.HTTPMiddleware(logger))
	mux.Handle("/", r)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("peercast listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down peercast")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Closing the hub ends every websocket; their disconnects tear down
	// the sessions they published.
	stopHub()
	<-hubDone
	waitForDisconnects(shutdownCtx, dir)

	cancel()
	signalSvc.Stop()

	stopEvents()
	select {
	case <-dispatcher.Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("lifecycle events not fully delivered")
	}
	if n := dispatcher.Dropped(); n > 0 {
		logger.Warn().Uint64("dropped", n).Msg("lifecycle events dropped")
	}

	if producer != nil {
		producer.Close()
	}
	if ps != nil {
		ps.Close()
	}
	if db != nil {
		database.Close(db)
	}

	logger.Info().Msg("peercast stopped")
}

func waitForDisconnects(ctx context.Context, dir *directory.Directory) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for dir.Connections() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
