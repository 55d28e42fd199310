package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"volunteer-manager/internal/handler"
	"volunteer-manager/pkg/otel"
	"volunteer-manager/pkg/rbac"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Auth         *handler.AuthHandler
	Tasks        *handler.TaskHandler
	Scheduler    *handler.SchedulerHandler
	Publications *handler.PublicationHandler
	Admin        *handler.AdminHandler
	User         *handler.UserHandler
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, jwtSecret string, ready Pinger) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), otel.GinMiddleware(), MetricsMiddleware())

	RegisterHealth(r, ready)

	// Public
	r.POST("/login", h.Auth.Login)

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.GET("/subscriptions", RequirePermission(rbac.PermissionManageSubscriptions), h.User.GetSubscriptions)
		auth.PUT("/subscriptions", RequirePermission(rbac.PermissionManageSubscriptions), h.User.PutSubscription)
		auth.GET("/notifications", RequirePermission(rbac.PermissionReadNotifications), h.User.GetNotifications)
		auth.POST("/notifications/:id/read", RequirePermission(rbac.PermissionReadNotifications), h.User.MarkNotificationRead)
	}

	admin := auth.Group("/admin")
	{
		admin.GET("/tasks", RequirePermission(rbac.PermissionReadTasks), h.Tasks.ListTasks)
		admin.GET("/tasks/:id", RequirePermission(rbac.PermissionReadTasks), h.Tasks.GetTask)
		admin.POST("/tasks", RequirePermission(rbac.PermissionScheduleTasks), h.Tasks.ScheduleTask)
		admin.POST("/tasks/:id/rerun", RequirePermission(rbac.PermissionScheduleTasks), h.Tasks.RerunTask)

		admin.GET("/scheduler", RequirePermission(rbac.PermissionReadScheduler), h.Scheduler.GetStatus)

		admin.GET("/publications", RequirePermission(rbac.PermissionReadPublications), h.Publications.ListPublications)
		admin.GET("/publications/:id", RequirePermission(rbac.PermissionReadPublications), h.Publications.GetPublication)
		admin.POST("/publications", RequirePermission(rbac.PermissionPublish), h.Publications.Publish)
		admin.POST("/publications/test", RequirePermission(rbac.PermissionSendTestPublication), h.Publications.SendTest)
		admin.GET("/deliveries", RequirePermission(rbac.PermissionReadPublications), h.Publications.ListDeliveries)

		admin.POST("/outbox/replay", RequirePermission(rbac.PermissionReplayOutbox), h.Admin.ReplayOutboxEvent)
		admin.POST("/outbox/replay-failed", RequirePermission(rbac.PermissionReplayOutbox), h.Admin.ReplayFailedEvents)
	}

	return &Router{Engine: r}
}

// RegisterHealth adds /healthz, /readyz and /metrics. ready may be nil.
func RegisterHealth(r *gin.Engine, ready Pinger) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
			defer cancel()

			if err := ready.Ping(ctx); err != nil {
				c.JSON(500, gin.H{"status": "not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
