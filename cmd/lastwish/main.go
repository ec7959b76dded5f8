package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/getsentry/sentry-go"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/bootstrap"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/cli"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
)

var CLI struct {
	LogLevel string `help:"Log level (debug, info, warn, error)." env:"LOG_LEVEL" default:"warn"`
	Migrate  bool   `help:"Run AutoMigrate before the command."`

	Run        cli.RunCmd        `cmd:"" help:"Run one overdue check and deliver to every overdue user."`
	Trigger    cli.TriggerCmd    `cmd:"" help:"Deliver for one overdue user now."`
	CheckIn    cli.CheckInCmd    `cmd:"" name:"check-in" help:"Record a check-in for a user."`
	Status     cli.StatusCmd     `cmd:"" help:"Show a user's deadline and switch state."`
	Deliveries cli.DeliveriesCmd `cmd:"" help:"List a user's delivery records."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("lastwish"),
		kong.Description("Last Wish delivery engine: run from cron or operate on a single user."),
		kong.UsageOnError(),
	)

	stderr := logging.SetupWriter(os.Stderr, CLI.LogLevel)
	cfg := config.Load()

	if err := run(kctx, cfg, stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context, cfg *config.Config, stderr slog.Handler) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.AppEnv,
		}); err != nil {
			slog.Warn("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	if err := database.Connect(cfg); err != nil {
		return err
	}
	defer database.Close()

	// Failed episodes also land in system_logs, same as the server.
	pgLogHandler := logging.NewPGHandler(database.DB)
	defer pgLogHandler.Stop()
	slog.SetDefault(slog.New(logging.NewMultiHandler(stderr, pgLogHandler)))

	if CLI.Migrate {
		if err := database.MigrateShared(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if err := database.MigrateModels([]interface{}{&models.CheckInSettings{}, &models.DeliveryRecord{}}); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	engine, err := bootstrap.New(ctx, cfg, database.DB)
	if err != nil {
		return err
	}
	defer engine.Close()

	return kctx.Run(&cli.Context{
		Ctx:    ctx,
		Engine: engine.Runner,
		Owner:  engine.Service,
		Out:    os.Stdout,

		Production: cfg.IsProduction(),
	})
}
