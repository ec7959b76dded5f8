// Package bootstrap assembles the delivery engine from configuration. Both the
// HTTP server and the CLI use it so they run the exact same pipeline.
package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/delivery"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/lease"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/mail"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/store"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Engine struct {
	Store   *store.Store
	Runner  *delivery.Runner
	Service *delivery.Service

	MailConfigured bool
	RunLease       bool

	redis *redis.Client
}

// New wires store, export, mail and the optional run lease. A missing SMTP
// configuration is not an error here: the engine starts and every run
// reports ErrMailerNotConfigured until it is fixed.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB) (*Engine, error) {
	st := store.New(db)
	builder := delivery.NewBuilder(st, store.Sources(db), delivery.RenderJSON, delivery.RenderWorkbook)

	var mailer delivery.Mailer
	smtp, err := mail.NewSMTP(mail.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		Timeout:  cfg.SendTimeout,
	})
	switch {
	case errors.Is(err, delivery.ErrMailerNotConfigured):
		slog.Warn("SMTP not configured; last wish runs will fail until SMTP_HOST and SMTP_FROM are set")
	case err != nil:
		return nil, err
	default:
		mailer = smtp
	}

	dispatcher := delivery.NewDispatcher(st, mailer, mail.Composer{}, delivery.DispatchConfig{
		SendTimeout: cfg.SendTimeout,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.RetryBackoff,
		Concurrency: cfg.DispatchConcurrency,
	})

	e := &Engine{Store: st, MailConfigured: mailer != nil}

	var opts []delivery.RunnerOption
	if cfg.RedisAddress != "" {
		rdb, err := lease.Connect(ctx, cfg.RedisAddress, cfg.RedisPassword)
		if err != nil {
			slog.Warn("redis unavailable; running without a run lease", "error", err)
		} else {
			e.redis = rdb
			e.RunLease = true
			opts = append(opts, delivery.WithRunLease(lease.New(rdb, lease.DefaultKey, cfg.RunLeaseTTL)))
		}
	}

	e.Runner = delivery.NewRunner(st, builder, dispatcher, opts...)
	e.Service = delivery.NewService(st, builder)
	return e, nil
}

func (e *Engine) Close() {
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			slog.Warn("redis close failed", "error", err)
		}
	}
}
