package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	_ "github.com/galihcitta/confras/docs"
	"github.com/galihcitta/confras/internal/config"
	"github.com/galihcitta/confras/internal/middleware"
	"github.com/galihcitta/confras/internal/services/page"
	"github.com/galihcitta/confras/internal/services/payment"
)

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	Pages    *page.Service
	Renderer Renderer
	Files    FileReader
	Health   HealthChecker
	Tiers    *payment.Tiers
	Tenants  TenantManagerInterface
	Guests   GuestServiceInterface
	Webhooks WebhookProcessorInterface
	Tokens   middleware.TokenValidator
	Limiter  middleware.Counter
}

type Server struct {
	router         *gin.Engine
	config         *config.Config
	deps           Dependencies
	pageHandler    *PageHandler
	tenantHandler  *TenantHandler
	guestHandler   *GuestHandler
	webhookHandler *WebhookHandler
	logger         *zap.Logger
}

func NewServer(cfg *config.Config, deps Dependencies, logger *zap.Logger) *Server {
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	if cfg.Telemetry.Enabled {
		router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	}
	router.Use(middleware.RequestLogger(logger))
	router.Use(CORSMiddleware())

	if cfg.Metrics.Enabled {
		router.Use(middleware.PrometheusMiddleware())
	}

	router.MaxMultipartMemory = multipartMemory

	return &Server{
		router: router,
		config: cfg,
		deps:   deps,
		pageHandler: NewPageHandler(deps.Pages, deps.Renderer, deps.Files, deps.Tiers,
			cfg.App.Name, cfg.Server.RootDomain, cfg.Auth.RequireAuth, logger),
		tenantHandler:  NewTenantHandler(deps.Tenants, logger),
		guestHandler:   NewGuestHandler(deps.Guests, cfg.Server.MaxUploadMB<<20, cfg.Auth.RequireAuth, logger),
		webhookHandler: NewWebhookHandler(deps.Webhooks, logger),
		logger:         logger,
	}
}

func (s *Server) SetupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	if s.config.Metrics.Enabled {
		s.router.GET(s.config.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// Swagger documentation
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	session := middleware.OptionalAuthMiddleware(s.deps.Tokens, false)
	limit := middleware.RateLimit(s.deps.Limiter, s.config.RateLimit.Requests, s.config.RateLimit.Window, s.logger)

	// Pages
	s.router.GET("/", s.pageHandler.Landing)
	s.router.GET("/festa/:slug", s.pageHandler.Event)
	s.router.GET("/admin", session, s.pageHandler.Admin)
	s.router.GET("/login", s.pageHandler.Login)
	s.router.GET("/reset", s.pageHandler.ResetForm)
	s.router.GET("/files/:id", session, s.pageHandler.File)
	s.router.NoRoute(s.pageHandler.NoRoute)

	api := s.router.Group("/api")
	{
		api.POST("/create_tenant_free", limit, s.tenantHandler.CreateTenant)
		api.POST("/confirm_vaquinha", limit, s.guestHandler.ConfirmVaquinha)
		api.POST("/login", limit, s.tenantHandler.Login)
		api.POST("/request_reset", limit, s.tenantHandler.RequestReset)
		api.POST("/reset_password_confirm", limit, s.tenantHandler.ConfirmReset)
		api.POST("/webhook/payment_success", s.webhookHandler.PaymentSuccess)

		admin := api.Group("/admin")
		admin.Use(middleware.OptionalAuthMiddleware(s.deps.Tokens, s.config.Auth.RequireAuth))
		{
			admin.POST("/update_guest", s.guestHandler.UpdateGuest)
		}
	}
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// healthCheck godoc
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := s.deps.Health.HealthCheck(ctx); err != nil {
		s.logger.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "degraded",
			"service": s.config.App.Name,
			"backend": "unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": s.config.App.Name,
	})
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
