package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"volunteer-manager/internal/handler"
	"volunteer-manager/internal/httpserver"
	"volunteer-manager/internal/notify"
	"volunteer-manager/internal/repository"
	"volunteer-manager/internal/service/auth"
	"volunteer-manager/internal/tasks"
	"volunteer-manager/pkg/config"
	"volunteer-manager/pkg/db"
	"volunteer-manager/pkg/logger"
	"volunteer-manager/pkg/mq"
	"volunteer-manager/pkg/otel"
	"volunteer-manager/pkg/outbox"
	redisclient "volunteer-manager/pkg/redis"
)

const serviceName = "api"

func main() {
	log := logger.NewLogger(config.GetConfigEnv(), serviceName)
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.JWT.Secret == "" {
		log.Fatal("jwt.secret is not set")
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

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis
	rdb, err := redisclient.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	// MQ Publisher (outbox replay)
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	taskRepo := repository.NewTaskRepository(dbConn, outboxRepo, log)
	userRepo := repository.NewUserRepository(dbConn)
	publicationRepo := repository.NewPublicationRepository(dbConn)
	subscriptionRepo := repository.NewSubscriptionRepository(dbConn, log)
	templateRepo := repository.NewTemplateRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn, outboxRepo, log)
	deliveryRepo := repository.NewDeliveryRepository(dbConn)

	// The API only writes task rows; the scheduler process executes them.
	registry, err := tasks.NewRegistry(tasks.DefaultHandlers(nil, nil, nil, nil))
	if err != nil {
		log.Fatal("Failed to build task registry", zap.Error(err))
	}
	scheduler := tasks.NewScheduler(taskRepo, registry, nil, log)

	fanout := notify.NewPublisher(publicationRepo, subscriptionRepo, notify.Deps{
		Scheduler:     scheduler,
		Templates:     templateRepo,
		Notifications: notificationRepo,
	}, log)

	// Handlers
	authService := auth.NewService(userRepo, cfg.JWT.Secret, config.Duration(cfg.JWT.TTL, 24*time.Hour))
	handlers := httpserver.Handlers{
		Auth:  handler.NewAuthHandler(authService, log),
		Tasks: handler.NewTaskHandler(taskRepo, scheduler, log),
		Scheduler: handler.NewSchedulerHandler(func(ctx context.Context) (tasks.Status, error) {
			return tasks.LoadStatus(ctx, rdb)
		}, config.Duration(cfg.Scheduler.StatusMaxAge, 5*time.Minute), log),
		Publications: handler.NewPublicationHandler(publicationRepo, deliveryRepo, fanout, log),
		Admin:        handler.NewAdminHandler(outbox.NewReplayService(outboxRepo, publisher, log), log),
		User:         handler.NewUserHandler(subscriptionRepo, notificationRepo, log),
	}

	if config.GetConfigEnv() != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpserver.NewRouter(handlers, cfg.JWT.Secret, dbConn)

	port := cfg.Server.Port
	if port == "" {
		port = ":8080"
	}
	srv := &http.Server{
		Addr:    port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("API server starting", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("API server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down API server gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("API server shutdown error", zap.Error(err))
	}
	log.Info("API server shutdown complete")
}
