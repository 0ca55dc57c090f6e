package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	WS             *handler.WSHandler
	Session        *handler.SessionHandler
	SecurityConfig *handler.SecurityConfigHandler
	Monitor        *handler.MonitorHandler
	ProctorEvents  *handler.ProctorEventHandler
	System         *handler.SystemHandler
	Health         *handler.HealthHandler
	// Metrics serves the Prometheus registry; nil disables /metrics.
	Metrics http.Handler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	limiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Probes stay outside the rate limiter.
	router.GET("/health", handlers.Health.Health)
	if handlers.Metrics != nil {
		router.GET("/metrics", gin.WrapH(handlers.Metrics))
	}

	if limiter != nil {
		router.Use(limiter.Middleware())
	}

	// ─── 1. Public Group (No Auth) ─────────────────────────────────────
	publicAPI := router.Group("/api/v1/public")
	{
		publicAPI.GET("/security-config", handlers.SecurityConfig.GetSecurityConfig)
	}

	// ─── 2. Examinee Group (JWT) ───────────────────────────────────────
	examineeAPI := router.Group("/api/v1/examinee")
	examineeAPI.Use(middleware.RequireExamineeJWT(authService))
	{
		examineeAPI.GET("/sessions/active", handlers.Session.GetActiveSession)
		examineeAPI.GET("/sessions/:session_id", handlers.Session.GetSession)
	}

	// ─── 3. WebSocket Group (Examinee WS Auth) ─────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireExamineeWSAuth(authService))
	{
		ws.GET("/exams/:subject/:level/session", handlers.WS.ExamSessionStream)
	}

	// ─── 4. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.GET("/exams/:subject/:level/monitor",
			middleware.RequirePermission(model.PermissionProctorMonitor),
			handlers.Monitor.MonitorLevelSSE,
		)
		adminAPI.GET("/proctor-events",
			middleware.RequirePermission(model.PermissionProctorEventsRead),
			handlers.ProctorEvents.ListProctorEvents,
		)
		adminAPI.GET("/system/metrics",
			middleware.RequirePermission(model.PermissionProctorMonitor),
			handlers.System.SystemMetricsSSE,
		)
	}

	return router
}
