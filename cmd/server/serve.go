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
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/api"
	"github.com/galihcitta/confras/internal/auth"
	"github.com/galihcitta/confras/internal/cache"
	"github.com/galihcitta/confras/internal/cms"
	"github.com/galihcitta/confras/internal/config"
	"github.com/galihcitta/confras/internal/repository"
	"github.com/galihcitta/confras/internal/services/guest"
	"github.com/galihcitta/confras/internal/services/hosting"
	"github.com/galihcitta/confras/internal/services/messaging"
	"github.com/galihcitta/confras/internal/services/notify"
	"github.com/galihcitta/confras/internal/services/page"
	"github.com/galihcitta/confras/internal/services/payment"
	"github.com/galihcitta/confras/internal/services/tenant"
	"github.com/galihcitta/confras/internal/telemetry"
	"github.com/galihcitta/confras/web"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting confras",
		zap.String("version", Version),
		zap.String("store", cfg.Store.Driver),
		zap.String("payment_provider", cfg.Payment.Provider))

	// Initialize tracing
	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		Environment:    gin.Mode(),
		CollectorAddr:  cfg.Telemetry.CollectorAddr,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}()

	// Initialize store
	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// Initialize cache
	keys, err := newCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer keys.Close()

	// Initialize background jobs
	dispatcher := messaging.NewDispatcher(logger)
	dispatcher.Register(messaging.JobEmail, notify.EmailJobHandler(newMailer(cfg, logger)))
	if cfg.Hosting.Enabled {
		dispatcher.Register(messaging.JobProvisionDomain, hosting.NewProvisioner(hosting.Config{
			URL:           cfg.Hosting.URL,
			Token:         cfg.Hosting.Token,
			ApplicationID: cfg.Hosting.ApplicationID,
			Port:          cfg.Hosting.Port,
			RootDomain:    cfg.Server.RootDomain,
		}, logger))
	}

	publisher, stopJobs, err := newPublisher(ctx, cfg, dispatcher, logger)
	if err != nil {
		return err
	}

	// Initialize payments
	gateway, err := newGateway(cfg, logger)
	if err != nil {
		stopJobs()
		return err
	}
	tiers, err := payment.NewTiers(tierSpecs(cfg.Plans.Tiers), cfg.Plans.FreeGuestLimit)
	if err != nil {
		stopJobs()
		return fmt.Errorf("invalid plan tiers: %w", err)
	}

	tokens, err := auth.NewTokens(cfg.App.SecretKey, cfg.Auth.TokenExpiry, cfg.Auth.ResetExpiry)
	if err != nil {
		stopJobs()
		return fmt.Errorf("failed to initialize tokens: %w", err)
	}

	// Initialize services
	notifier := notify.NewNotifier(publisher, cfg.App.Name, logger)
	pages := page.NewService(store, logger)
	tenantManager := tenant.NewManager(store, tokens, keys, notifier, publisher, gateway, tiers, tenant.Config{
		AppName:          cfg.App.Name,
		BaseURL:          cfg.App.BaseURL,
		Currency:         cfg.Payment.Currency,
		NotificationURL:  cfg.Payment.NotificationURL,
		ProvisionDomains: cfg.Hosting.Enabled,
	}, logger)
	guests := guest.NewService(store, pages, notifier, tenantManager, logger)
	webhooks := payment.NewWebhookProcessor(gateway, tiers, tenantManager, logger)

	renderer, err := page.NewRenderer(web.Templates, web.TemplatePattern)
	if err != nil {
		stopJobs()
		return fmt.Errorf("failed to load templates: %w", err)
	}

	// Initialize API server
	server := api.NewServer(cfg, api.Dependencies{
		Pages:    pages,
		Renderer: renderer,
		Files:    store,
		Health:   store,
		Tiers:    tiers,
		Tenants:  tenantManager,
		Guests:   guests,
		Webhooks: webhooks,
		Tokens:   tokens,
		Limiter:  keys,
	}, logger)
	server.SetupRoutes()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.GetRouter(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		stopJobs()
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
	defer cancel()

	// Stop accepting requests before draining the job queue
	logger.Info("Shutting down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Shutting down background jobs...")
	stopJobs()

	logger.Info("Server exited gracefully")
	return nil
}

func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, error) {
	if cfg.Store.Driver == config.StorePostgres {
		db, err := repository.NewDatabase(ctx, cfg.Database.URL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := repository.MigrateUp(cfg.Database.URL, logger); err != nil {
			db.Close()
			return nil, err
		}
		return repository.NewPostgresStore(db, logger), nil
	}

	client, err := cms.NewClient(cms.Config{
		BaseURLs:  cfg.CMS.URLs,
		Token:     cfg.CMS.Token,
		Timeout:   cfg.CMS.Timeout,
		VerifyTLS: cfg.CMS.VerifyTLS,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize content backend client: %w", err)
	}
	return repository.NewCMSStore(client, logger), nil
}

func newCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Store, error) {
	if cfg.Redis.URL == "" {
		logger.Info("Redis not configured, using in-memory rate limits and reset tokens")
		return cache.NewMemoryStore(), nil
	}

	store, err := cache.NewRedisStore(ctx, cfg.Redis.URL, "confras:")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return store, nil
}

func newMailer(cfg *config.Config, logger *zap.Logger) notify.Mailer {
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP not configured, emails will only be logged")
		return notify.NewLogMailer(logger)
	}
	return notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, logger)
}

// newPublisher returns the job publisher and a func that drains and stops it.
// Jobs go through RabbitMQ when a broker is configured and run in-process
// otherwise.
func newPublisher(ctx context.Context, cfg *config.Config, handler messaging.JobHandler, logger *zap.Logger) (messaging.Publisher, func(), error) {
	if cfg.RabbitMQ.URL == "" {
		inline := messaging.NewInlinePublisher(handler, cfg.Workers, 0, logger)
		return inline, func() {
			if err := inline.Close(); err != nil {
				logger.Error("Error closing job publisher", zap.Error(err))
			}
		}, nil
	}

	broker := messaging.NewBroker(cfg.RabbitMQ.URL, logger)
	if err := broker.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	pool := messaging.NewWorkerPool(messaging.JobQueue, cfg.Workers, handler, broker, logger)
	if err := pool.Start(); err != nil {
		broker.Close()
		return nil, nil, fmt.Errorf("failed to start worker pool: %w", err)
	}

	return broker, func() {
		pool.Stop()
		if err := broker.Close(); err != nil {
			logger.Error("Error closing RabbitMQ", zap.Error(err))
		}
	}, nil
}

func newGateway(cfg *config.Config, logger *zap.Logger) (payment.Gateway, error) {
	if cfg.Payment.Provider == config.ProviderStripe {
		return payment.NewStripeGateway(cfg.Payment.AccessToken, logger), nil
	}

	gateway, err := payment.NewMercadoPagoGateway(cfg.Payment.AccessToken, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize payment gateway: %w", err)
	}
	return gateway, nil
}

func tierSpecs(tiers []config.TierConfig) []payment.TierSpec {
	specs := make([]payment.TierSpec, 0, len(tiers))
	for _, t := range tiers {
		specs = append(specs, payment.TierSpec{
			Plan:       t.Plan,
			Price:      t.Price,
			MinAmount:  t.MinAmount,
			GuestLimit: t.GuestLimit,
		})
	}
	return specs
}
