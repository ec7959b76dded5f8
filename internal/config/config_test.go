package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"MAIL_SEND_TIMEOUT", "MAIL_MAX_ATTEMPTS", "CHECK_INTERVAL", "SMTP_HOST", "SMTP_FROM", "SMTP_USER"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if cfg.SendTimeout != 30*time.Second || cfg.MaxAttempts != 3 || cfg.DispatchConcurrency != 4 {
		t.Errorf("dispatch defaults = %s/%d/%d", cfg.SendTimeout, cfg.MaxAttempts, cfg.DispatchConcurrency)
	}
	if cfg.CheckInterval != 0 {
		t.Errorf("in-process ticker should be off by default, got %s", cfg.CheckInterval)
	}
	if cfg.MailConfigured() {
		t.Errorf("mail reported configured without SMTP_HOST")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MAIL_SEND_TIMEOUT", "5s")
	t.Setenv("MAIL_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("CHECK_INTERVAL", "15m")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_FROM", "")
	t.Setenv("SMTP_USER", "mailer@example.com")

	cfg := Load()
	if cfg.SendTimeout != 5*time.Second {
		t.Errorf("send timeout = %s", cfg.SendTimeout)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("bad int should fall back, got %d", cfg.MaxAttempts)
	}
	if cfg.CheckInterval != 15*time.Minute {
		t.Errorf("check interval = %s", cfg.CheckInterval)
	}
	if cfg.SMTPFrom != "mailer@example.com" || !cfg.MailConfigured() {
		t.Errorf("sender should default to SMTP_USER, got %q", cfg.SMTPFrom)
	}
}
