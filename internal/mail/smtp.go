// Package mail sends Last Wish messages over SMTP.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/delivery"
	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Timeout  time.Duration
}

// SMTP is a delivery.Mailer. Each Send dials its own connection so that
// concurrent sends never share one.
type SMTP struct {
	cfg    Config
	domain string
	dial   func(ctx context.Context, msg *gomail.Msg) error
}

var _ delivery.Mailer = (*SMTP)(nil)

func NewSMTP(cfg Config) (*SMTP, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, delivery.ErrMailerNotConfigured
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &SMTP{cfg: cfg, domain: domainOf(cfg.From)}
	s.dial = s.dialAndSend
	return s, nil
}

func (s *SMTP) client() (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTimeout(s.cfg.Timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if s.cfg.Port == 465 {
		opts = append(opts, gomail.WithSSL())
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	return gomail.NewClient(s.cfg.Host, opts...)
}

func (s *SMTP) dialAndSend(ctx context.Context, msg *gomail.Msg) error {
	c, err := s.client()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return c.DialAndSendWithContext(ctx, msg)
}

// Send builds the MIME message and hands it to the server. The returned id
// is the Message-ID header.
func (s *SMTP) Send(ctx context.Context, m delivery.Message) (string, error) {
	msg, id, err := s.build(m)
	if err != nil {
		return "", err
	}
	if err := s.dial(ctx, msg); err != nil {
		return "", classify(err)
	}
	return id, nil
}

func (s *SMTP) build(m delivery.Message) (*gomail.Msg, string, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
		return nil, "", fmt.Errorf("invalid sender %q: %w", s.cfg.From, err)
	}
	if err := msg.AddToFormat(m.ToName, m.To); err != nil {
		return nil, "", fmt.Errorf("invalid recipient %q: %w", m.To, err)
	}
	msg.Subject(m.Subject)

	switch {
	case m.HTMLBody != "":
		msg.SetBodyString(gomail.TypeTextHTML, m.HTMLBody)
		if m.TextBody != "" {
			msg.AddAlternativeString(gomail.TypeTextPlain, m.TextBody)
		}
	default:
		msg.SetBodyString(gomail.TypeTextPlain, m.TextBody)
	}

	for _, a := range m.Attachments {
		err := msg.AttachReader(a.Filename, bytes.NewReader(a.Data),
			gomail.WithFileContentType(gomail.ContentType(a.ContentType)))
		if err != nil {
			return nil, "", fmt.Errorf("attach %s: %w", a.Filename, err)
		}
	}

	id := uuid.NewString() + "@" + s.domain
	msg.SetMessageIDWithValue(id)
	msg.SetDate()
	return msg, "<" + id + ">", nil
}

// SendFailure wraps a transport error and says whether retrying is safe.
type SendFailure struct {
	Err  error
	Temp bool
}

func (e *SendFailure) Error() string   { return e.Err.Error() }
func (e *SendFailure) Unwrap() error   { return e.Err }
func (e *SendFailure) Temporary() bool { return e.Temp }

// classify marks 4xx replies and failed dials as temporary. Context errors
// pass through untouched so the dispatcher can tell a timeout apart.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var sendErr *gomail.SendError
	if errors.As(err, &sendErr) {
		return &SendFailure{Err: err, Temp: sendErr.IsTemp()}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &SendFailure{Err: err, Temp: true}
	}
	return &SendFailure{Err: err}
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return strings.Trim(addr[i+1:], "> ")
	}
	return "localhost"
}
