package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/apps"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/apps/lastwish"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/bootstrap"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/delivery"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/routes"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	cfg := config.Load()

	// Structured logging (JSON to stdout)
	stdout := logging.Setup(cfg.LogLevel)

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}
	if cfg.CronSecret == "" && cfg.CheckInterval == 0 {
		slog.Warn("neither CRON_SECRET nor CHECK_INTERVAL is set; nothing will trigger last wish runs")
	}

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}

	if err := database.MigrateShared(); err != nil {
		slog.Error("shared migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(stdout, pgLogHandler)))

	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cfg.LogRetentionDays, cleanupDone)

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
			ServerName:       cfg.AppName,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := bootstrap.New(ctx, cfg, database.DB)
	if err != nil {
		slog.Error("delivery engine setup failed", "error", err)
		os.Exit(1)
	}

	plugins := []apps.Plugin{
		lastwish.New(engine.Runner, engine.Service, !cfg.IsProduction()),
	}

	for _, p := range plugins {
		if models := p.Models(); len(models) > 0 {
			if err := database.MigrateModels(models); err != nil {
				slog.Error("plugin migration failed", "plugin", p.ID(), "error", err)
				os.Exit(1)
			}
			slog.Info("plugin migrated", "plugin", p.ID(), "models", len(models))
		}
	}

	healthHandler := handlers.NewHealthHandler(database.Ping, engine.MailConfigured, engine.RunLease)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	routes.Setup(app, cfg, database.DB, healthHandler, plugins)

	tickerDone := make(chan struct{})
	if cfg.CheckInterval > 0 {
		startChecker(ctx, engine.Runner, cfg.CheckInterval, tickerDone)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "check_interval", cfg.CheckInterval.String())
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	close(tickerDone)
	cancel()
	close(cleanupDone)

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	engine.Close()
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)
	database.Close()

	slog.Info("server stopped")
}

// startChecker runs the scheduler entry point every interval. Overlapping
// ticks are impossible here; other replicas are kept apart by the claim and,
// when configured, the run lease.
func startChecker(ctx context.Context, runner *delivery.Runner, interval time.Duration, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := runner.RunCheck(ctx, time.Time{}); err != nil {
					slog.Error("scheduled last wish run failed", "action", "last_wish_run", "error", err)
					sentry.CaptureException(err)
				}
			case <-done:
				return
			}
		}
	}()
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
