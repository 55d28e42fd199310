package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mqcontracts "volunteer-manager/contracts/mq"
	"volunteer-manager/internal/httpserver"
	"volunteer-manager/internal/mqhandler"
	"volunteer-manager/internal/repository"
	"volunteer-manager/pkg/config"
	"volunteer-manager/pkg/db"
	"volunteer-manager/pkg/logger"
	"volunteer-manager/pkg/mq"
	"volunteer-manager/pkg/otel"
	"volunteer-manager/pkg/outbox"
	redisclient "volunteer-manager/pkg/redis"
	"volunteer-manager/pkg/util"
)

const serviceName = "worker"

func main() {
	log := logger.NewLogger(config.GetConfigEnv(), serviceName)
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownTracing()

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	rdb, err := redisclient.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	defer rdb.Close()

	notificationRepo := repository.NewNotificationRepository(dbConn, outbox.NewRepository(dbConn), log)
	deduper := util.NewDeduper(rdb, config.Duration(cfg.Worker.DedupTTL, 24*time.Hour), log)
	retries := util.NewRetryCounter(rdb, time.Hour)
	maxRetries := cfg.Worker.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	deliverHandler := mqhandler.NewNotificationDeliverHandler(notificationRepo, mqhandler.NewRedisBroadcaster(rdb), deduper, log)
	auditHandler := mqhandler.NewTaskFinishedAuditHandler(log)

	consumers := []struct {
		queue, routingKey string
		handle            mq.MessageHandler
	}{
		{mqcontracts.QueueNotificationDeliver, mqcontracts.RoutingKeyNotificationCreated, deliverHandler.HandleNotificationCreated},
		{mqcontracts.QueueTaskFinishedAudit, mqcontracts.RoutingKeyTaskFinished, auditHandler.HandleTaskFinished},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, c := range consumers {
		consumer, err := mq.NewConsumer(cfg.MQ.URL, c.queue, c.routingKey, log)
		if err != nil {
			log.Fatal("Failed to init consumer", zap.String("queue", c.queue), zap.Error(err))
		}
		defer consumer.Close()
		consumer.SetHandler(c.handle)
		consumer.WithRetryLimit(retries, maxRetries)

		wg.Add(1)
		go func(queue string) {
			defer wg.Done()
			log.Info("Consumer started", zap.String("queue", queue))
			if err := consumer.StartConsuming(ctx); err != nil {
				log.Error("Consumer stopped with error", zap.String("queue", queue), zap.Error(err))
			}
		}(c.queue)
	}

	port := cfg.Worker.HealthPort
	if port == "" {
		port = ":8082"
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	httpserver.RegisterHealth(engine, dbConn)
	srv := &http.Server{Addr: port, Handler: engine}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("worker is fully initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down worker gracefully...")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("worker shutdown complete")
}
