package container

import (
	"context"
	"fmt"

	"github.com/am0414/success-academy-international/config"
	"github.com/am0414/success-academy-international/pkg/api/handlers"
	"github.com/am0414/success-academy-international/pkg/billing"
	"github.com/am0414/success-academy-international/pkg/cache"
	"github.com/am0414/success-academy-international/pkg/database"
	"github.com/am0414/success-academy-international/pkg/email"
	"github.com/am0414/success-academy-international/pkg/jobs"
	"github.com/am0414/success-academy-international/pkg/logger"
	"github.com/am0414/success-academy-international/pkg/metrics"
	"github.com/am0414/success-academy-international/pkg/referral"
	"github.com/am0414/success-academy-international/pkg/store"
	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger logger.Logger

	// Infrastructure
	DB    *sqlx.DB
	Store *store.Store
	Redis *cache.Client // nil when REDIS_URL is unset

	// Services
	Metrics         *metrics.Metrics
	EmailService    *email.Service
	BillingService  *billing.Service
	ReferralService *referral.Service
	Cron            *jobs.CronManager

	// Handlers
	BillingHandler  *handlers.BillingHandler
	WebhookHandler  *handlers.WebhookHandler
	ReferralHandler *handlers.ReferralHandler
	HealthHandler   *handlers.HealthHandler

	provider billing.Provider
}

// New connects to the database (and Redis when configured) and initializes all
// application dependencies
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*Container, error) {
	poolCfg := database.DefaultPoolConfig()
	poolCfg.MaxOpenConns = cfg.DBMaxOpenConns
	poolCfg.MaxIdleConns = cfg.DBMaxIdleConns

	dbClient, err := database.NewClient(ctx, cfg.DatabaseURL, poolCfg, &database.SSLConfig{
		Mode:         cfg.DBSSLMode,
		CertPath:     cfg.DBSSLCertPath,
		KeyPath:      cfg.DBSSLKeyPath,
		RootCertPath: cfg.DBSSLRootCertPath,
	}, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return nil, err
	}

	c, err := newWithDB(ctx, cfg, log, dbClient.DB, billing.NewStripeProvider(cfg.StripeSecretKey))
	if err != nil {
		dbClient.Close()
		return nil, err
	}
	return c, nil
}

func newWithDB(ctx context.Context, cfg *config.Config, log logger.Logger, db *sqlx.DB, provider billing.Provider) (*Container, error) {
	c := &Container{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Store:    store.New(db),
		provider: provider,
	}

	if err := c.initInfrastructure(ctx); err != nil {
		return nil, err
	}
	if err := c.initServices(); err != nil {
		if c.Redis != nil {
			c.Redis.Close()
		}
		return nil, err
	}
	c.initHandlers()

	c.Logger.Info("container initialized",
		"environment", cfg.APIEnvironment,
		"database", "connected",
		"redis", c.Redis != nil)

	return c, nil
}

// initInfrastructure connects optional infrastructure
func (c *Container) initInfrastructure(ctx context.Context) error {
	if c.Config.RedisURL == "" {
		c.Logger.Info("REDIS_URL not set, processed webhook events are kept in the database")
		return nil
	}

	client, err := cache.NewClient(ctx, c.Config.RedisURL, c.Logger)
	if err != nil {
		c.Logger.Error("failed to connect to redis", "error", err)
		return err
	}
	c.Redis = client
	return nil
}

// eventLog picks where processed webhook events are remembered
func (c *Container) eventLog() billing.EventLog {
	if c.Redis != nil {
		return cache.NewEventLog(c.Redis, c.Config.WebhookEventTTL)
	}
	return c.Store.WebhookEvents()
}

// initServices initializes all domain services
func (c *Container) initServices() error {
	c.Metrics = metrics.New()
	if err := c.Metrics.RegisterDBStats(c.DB.DB, "academy"); err != nil {
		return fmt.Errorf("failed to register database metrics: %w", err)
	}

	c.EmailService = email.NewService(
		c.Config.EmailFrom,
		c.Config.EmailFromName,
		c.Config.SendGridAPIKey,
		c.Logger,
	)

	c.BillingService = billing.NewService(c.Store, c.provider, c.eventLog(), billing.Config{
		WebhookSecret:           c.Config.StripeWebhookSecret,
		MonthlyPriceCents:       c.Config.MonthlyPriceCents,
		EnrollmentFeeCents:      c.Config.EnrollmentFeeCents,
		TrialDays:               c.Config.TrialDays,
		Currency:                c.Config.Currency,
		FrontendURL:             c.Config.FrontendURL,
		CascadeOnReferrerCancel: c.Config.ReferralCascadeOnReferrerCancel,
	}, c.Logger)
	c.BillingService.SetEmailSender(c.EmailService)
	c.BillingService.SetRecorder(c.Metrics)

	c.ReferralService = referral.NewService(c.Store, c.BillingService, c.Logger)

	// Redis expires processed events itself; the table needs a sweep
	var purger jobs.EventPurger
	if c.Redis == nil {
		purger = c.Store.WebhookEvents()
	}
	c.Cron = jobs.NewCronManager(jobs.Config{
		DiscountSyncSchedule: c.Config.DiscountSyncSchedule,
		EventRetention:       c.Config.WebhookEventTTL,
	}, c.BillingService, purger, c.Logger)
	if err := c.Cron.SetupJobs(); err != nil {
		return fmt.Errorf("failed to setup cron jobs: %w", err)
	}

	c.Logger.Info("services initialized",
		"billing_service", "ready",
		"referral_service", "ready",
		"cron_jobs", c.Cron.Entries())
	return nil
}

// initHandlers initializes all HTTP handlers
func (c *Container) initHandlers() {
	c.BillingHandler = handlers.NewBillingHandler(c.BillingService)
	c.WebhookHandler = handlers.NewWebhookHandler(c.BillingService)
	c.ReferralHandler = handlers.NewReferralHandler(c.ReferralService)

	checks := map[string]handlers.Pinger{"database": c.Store}
	if c.Redis != nil {
		checks["redis"] = c.Redis
	}
	c.HealthHandler = handlers.NewHealthHandler(checks)

	c.Logger.Info("handlers initialized")
}

// Close closes all resources (database, cache connections)
func (c *Container) Close() error {
	c.Logger.Info("shutting down container")

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Error("failed to close redis", "error", err)
			return err
		}
	}

	if err := c.DB.Close(); err != nil {
		c.Logger.Error("failed to close database", "error", err)
		return err
	}

	c.Logger.Info("container shutdown complete")
	return nil
}
