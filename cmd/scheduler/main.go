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
	"github.com/google/uuid"
	"go.uber.org/zap"

	"volunteer-manager/internal/httpserver"
	"volunteer-manager/internal/repository"
	"volunteer-manager/internal/sender"
	"volunteer-manager/internal/tasks"
	"volunteer-manager/pkg/config"
	"volunteer-manager/pkg/db"
	"volunteer-manager/pkg/lease"
	"volunteer-manager/pkg/logger"
	"volunteer-manager/pkg/mq"
	"volunteer-manager/pkg/otel"
	"volunteer-manager/pkg/outbox"
	redisclient "volunteer-manager/pkg/redis"
)

const serviceName = "scheduler"

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()
	if err := db.EnsureSchema(ctx, dbConn); err != nil {
		log.Fatal("Failed to apply schema", zap.Error(err))
	}

	// Redis
	rdb, err := redisclient.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	defer rdb.Close()

	// MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	taskRepo := repository.NewTaskRepository(dbConn, outboxRepo, log)
	deliveryRepo := repository.NewDeliveryRepository(dbConn)

	// Senders
	ses, err := sender.NewSESSender(ctx, cfg.Email, log)
	if err != nil {
		log.Fatal("Failed to init SES sender", zap.Error(err))
	}
	twilio := sender.NewTwilioSender(cfg.Twilio, log)

	registry, err := tasks.NewRegistry(tasks.DefaultHandlers(ses, twilio, twilio, deliveryRepo))
	if err != nil {
		log.Fatal("Failed to build task registry", zap.Error(err))
	}

	instance := uuid.NewString()
	leaseTTL := config.Duration(cfg.Scheduler.LeaseTTL, 30*time.Second)
	interval := config.Duration(cfg.Scheduler.Interval, time.Second)

	executor := tasks.NewExecutor(taskRepo, registry, log)
	scheduler := tasks.NewScheduler(taskRepo, registry, executor, log).
		WithInterval(interval).
		WithBatchSize(cfg.Scheduler.BatchSize).
		WithClaimer(lease.NewManager(rdb, instance, leaseTTL), instance, leaseTTL).
		WithStatusSink(tasks.NewRedisStatusSink(rdb, 24*time.Hour))

	recurring, err := tasks.NewRecurring(ctx, scheduler, cfg.Scheduler.Recurring, log)
	if err != nil {
		log.Fatal("Invalid recurring task configuration", zap.Error(err))
	}

	// Outbox Dispatcher
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		dispatcher.Start(ctx)
	}()

	log.Info("Starting scheduler loop",
		zap.String("instance", instance),
		zap.Duration("interval", interval),
		zap.Int("recurring", recurring.Len()),
	)
	go func() {
		defer loops.Done()
		scheduler.Start(ctx)
	}()
	recurring.Start()

	// HTTP Server (for health checks)
	port := cfg.Scheduler.HealthPort
	if port == "" {
		port = ":8081"
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	httpserver.RegisterHealth(engine, dbConn)
	srv := &http.Server{
		Addr:    port,
		Handler: engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("scheduler is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down scheduler gracefully...")

	recurring.Stop()
	cancel()
	// in-flight tasks finish and store their outcome before the pool closes
	loops.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("scheduler shutdown complete")
}
