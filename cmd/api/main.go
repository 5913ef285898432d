package main

// @title Success Academy Billing API
// @version 1.0
// @description Referral discounts and subscription billing for Success Academy International.

// @host localhost:8080
// @BasePath /api/v1

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/am0414/success-academy-international/config"
	apierrors "github.com/am0414/success-academy-international/pkg/api/errors"
	"github.com/am0414/success-academy-international/pkg/container"
	"github.com/am0414/success-academy-international/pkg/logger"
	custommiddleware "github.com/am0414/success-academy-international/pkg/middleware"
	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	apierrors.SetLogger(log)
	log.Info("configuration loaded", "environment", cfg.APIEnvironment)

	// Initialize Sentry for error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 0.2,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Warn("failed to initialize sentry", "error", err)
		} else {
			log.Info("sentry initialized", "environment", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Info("sentry disabled (no DSN configured)")
	}

	if cfg.StripeWebhookSecret == "" {
		log.Warn("STRIPE_WEBHOOK_SECRET is not set, every webhook delivery will be rejected")
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	app, err := container.New(startupCtx, cfg, log)
	cancelStartup()
	if err != nil {
		log.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Background work shares one lifetime with the server
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Initialize rate limiters
	globalRateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	checkoutRateLimiter := custommiddleware.NewRateLimiter(20, 5)
	webhookRateLimiter := custommiddleware.NewRateLimiter(100, 20)
	for _, rl := range []*custommiddleware.RateLimiter{globalRateLimiter, checkoutRateLimiter, webhookRateLimiter} {
		go rl.Run(bgCtx)
	}

	// Global middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		LogRemoteIP: true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				log.Error("request failed", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency.String(), "error", v.Error)
				return nil
			}
			log.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency.String(), "ip", v.RemoteIP)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	// Sentry error tracking middleware (if configured)
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true,
		}))
	}

	e.Use(app.Metrics.Middleware())
	e.Use(middleware.CORSWithConfig(custommiddleware.CORSConfig(strings.Split(cfg.FrontendURL, ",")...)))
	e.Use(custommiddleware.SecurityHeaders(custommiddleware.DefaultSecurityHeadersConfig()))

	// Public endpoints
	e.GET("/health", app.HealthHandler.Health)
	e.GET("/metrics", app.Metrics.Handler())

	v1 := e.Group("/api/v1")

	// Webhooks are verified by signature and have their own limiter
	v1.POST("/webhook/stripe", app.WebhookHandler.HandleStripe, webhookRateLimiter.RateLimitMiddleware())

	api := v1.Group("", middleware.Gzip(), globalRateLimiter.RateLimitMiddleware())
	api.POST("/checkout", app.BillingHandler.CreateCheckout, checkoutRateLimiter.RateLimitMiddleware())
	api.POST("/billing/portal", app.BillingHandler.CreatePortalSession)

	referrals := api.Group("/referrals")
	referrals.GET("", app.ReferralHandler.GetReferrals)
	referrals.POST("", app.ReferralHandler.CreateReferral)
	referrals.PUT("/status", app.ReferralHandler.UpdateReferralStatus)

	app.Cron.Start()

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Info("API starting",
		"address", address,
		"log_level", cfg.LogLevel,
		"monthly_price_cents", cfg.MonthlyPriceCents,
		"enrollment_fee_cents", cfg.EnrollmentFeeCents,
		"trial_days", cfg.TrialDays,
		"referral_cascade", cfg.ReferralCascadeOnReferrerCancel,
		"rate_limit", cfg.RateLimitRequestsPerMinute,
	)

	// Graceful shutdown
	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	// Let a running discount sync finish
	select {
	case <-app.Cron.Stop().Done():
		log.Info("cron jobs stopped")
	case <-ctx.Done():
		log.Warn("cron jobs still running at shutdown")
	}

	log.Info("server gracefully stopped")
}
