package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	alerthandler "nestcare/backend/internal/alert/handler"
	alertrepo "nestcare/backend/internal/alert/repository"
	alertsvc "nestcare/backend/internal/alert/service"
	"nestcare/backend/internal/config"
	"nestcare/backend/internal/db"
	healthhandler "nestcare/backend/internal/health/handler"
	"nestcare/backend/internal/monitor"
	"nestcare/backend/internal/monitor/classify"
	"nestcare/backend/internal/notify"
	"nestcare/backend/internal/realtime"
	"nestcare/backend/internal/server"
	sessionhandler "nestcare/backend/internal/session/handler"
	sessionrepo "nestcare/backend/internal/session/repository"
	sessionsvc "nestcare/backend/internal/session/service"
	trackinghandler "nestcare/backend/internal/tracking/handler"
	trackingrepo "nestcare/backend/internal/tracking/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer database.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()
	bus := realtime.NewBus(rdb, logger)
	names := realtime.Channels{}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.NotifyExchange)
		if err != nil {
			logger.Fatal("connect amqp", zap.Error(err))
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
	}

	sessions := sessionrepo.NewPostgresRepository(database)
	alerts := alertrepo.NewPostgresRepository(database)
	samples := trackingrepo.NewPostgresRepository(database)

	pipeline := alertsvc.NewPipeline(alerts, sessions, bus, names, notifier, cfg.CryCooldown(), logger)

	// No capture devices are attached in the server deployment; toggles are
	// persisted here and the sitter's device reports samples over HTTP.
	var classifier monitor.Classifier
	if cfg.ClassifierURL != "" {
		classifier = classify.NewClient(cfg.ClassifierURL)
	}
	coordinator := monitor.NewCoordinator(sessions, samples, pipeline, bus, names,
		nil, nil, classifier,
		monitor.Config{
			LocationInterval:  cfg.LocationUpdateInterval(),
			DetectionWindow:   cfg.DetectionWindowDuration(),
			CryScoreThreshold: cfg.CryScoreThreshold,
			AnomalyKm:         cfg.GPSAnomalyKm,
		}, logger)
	defer coordinator.StopAll()

	dispatcher := sessionsvc.NewDispatcher(sessions, bus, names, logger)
	lifecycle := sessionsvc.NewLifecycle(sessions, coordinator, bus, names, logger)

	srv := server.New(cfg.HTTPAddr, []byte(cfg.AuthJWTSecret), logger)
	healthhandler.NewHandler(database, redisPinger{rdb}).RegisterRoutes(srv.Echo())
	sessionhandler.NewHandler(dispatcher, lifecycle, coordinator, sessions).RegisterRoutes(srv.API())
	alerthandler.NewHandler(pipeline, sessions).RegisterRoutes(srv.API())
	trackinghandler.NewHandler(samples, sessions, coordinator).RegisterRoutes(srv.API())
	realtime.NewWSHandler(bus, logger).RegisterRoutes(srv.API())

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

// redisPinger adapts the go-redis client to the health Pinger contract.
type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

func newLogger(format string) (*zap.Logger, error) {
	if format == "json" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
