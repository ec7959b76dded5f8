package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DispatchConfig bounds the per-recipient send step.
type DispatchConfig struct {
	SendTimeout time.Duration
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	Concurrency int
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

// RecipientResult is the outcome for one recipient.
type RecipientResult struct {
	Email      string                `json:"email"`
	Name       string                `json:"name,omitempty"`
	RecordID   uuid.UUID             `json:"record_id"`
	Status     models.DeliveryStatus `json:"status"`
	MessageID  string                `json:"message_id,omitempty"`
	Attempts   int                   `json:"attempts"`
	Error      string                `json:"error,omitempty"`
	AuditError string                `json:"audit_error,omitempty"`
}

// DispatchReport summarises one episode's sends. Attempted counts recipients
// whose message reached the transport at least once.
type DispatchReport struct {
	EpisodeID    uuid.UUID         `json:"episode_id"`
	Attempted    int               `json:"attempted"`
	Succeeded    int               `json:"succeeded"`
	Failed       int               `json:"failed"`
	PerRecipient []RecipientResult `json:"per_recipient"`
}

// Delivered is true when at least one recipient got the export.
func (r *DispatchReport) Delivered() bool {
	return r.Succeeded > 0
}

// Dispatcher sends an export to every recipient and keeps the audit log.
type Dispatcher struct {
	store    Store
	mailer   Mailer
	composer Composer
	cfg      DispatchConfig
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(store Store, mailer Mailer, composer Composer, cfg DispatchConfig) *Dispatcher {
	return &Dispatcher{
		store:    store,
		mailer:   mailer,
		composer: composer,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Dispatch sends payload to each recipient independently. Every recipient gets
// a DeliveryRecord, inserted as pending before the send and finished as sent
// or failed after it. An empty recipient list is rejected before anything is
// written.
func (d *Dispatcher) Dispatch(ctx context.Context, episodeID, userID uuid.UUID, recipients []models.Recipient, payload *Payload) (*DispatchReport, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if d.mailer == nil {
		return nil, ErrMailerNotConfigured
	}

	results := make([]RecipientResult, len(recipients))
	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for i, r := range recipients {
		i, r := i, r
		g.Go(func() error {
			results[i] = d.deliver(ctx, episodeID, userID, r, payload)
			return nil
		})
	}
	_ = g.Wait()

	report := &DispatchReport{EpisodeID: episodeID, PerRecipient: results}
	for _, res := range results {
		if res.Attempts > 0 {
			report.Attempted++
		}
		if res.Status == models.DeliverySent {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	return report, nil
}

func (d *Dispatcher) deliver(ctx context.Context, episodeID, userID uuid.UUID, r models.Recipient, payload *Payload) (res RecipientResult) {
	res = RecipientResult{Email: r.Email, Name: r.Name, Status: models.DeliveryFailed}
	log := slog.With("user_id", userID.String(), "episode_id", episodeID.String(), "recipient", r.Email)

	outcome := DeliveryOutcome{Status: models.DeliveryFailed}
	sendStarted := false
	defer func() {
		if p := recover(); p != nil {
			text := fmt.Sprintf("panic: %v", p)
			log.Error("last wish send panicked", "action", "last_wish_send", "error", text)
			if outcome.Status != models.DeliverySent {
				if sendStarted && outcome.Attempts == 0 {
					outcome.Attempts = 1
				}
				outcome.ErrorMessage = &text
				res.Status = models.DeliveryFailed
				res.Attempts = outcome.Attempts
				res.Error = text
			}
		}
		if res.RecordID != uuid.Nil {
			d.finish(ctx, log, &res, outcome)
		}
	}()

	record := &models.DeliveryRecord{
		ID:             uuid.New(),
		UserID:         userID,
		EpisodeID:      episodeID,
		RecipientEmail: r.Email,
		RecipientName:  r.Name,
		DeliveryStatus: models.DeliveryPending,
		CreatedAt:      d.now().UTC(),
	}
	// No audit row, no send.
	if err := d.store.InsertDeliveryRecord(ctx, record); err != nil {
		res.Error = fmt.Sprintf("audit record: %v", err)
		log.Error("delivery record insert failed", "action", "last_wish_send", "error", err)
		return res
	}
	res.RecordID = record.ID

	msg, err := d.composer.Compose(payload, r)
	if err != nil {
		err = fmt.Errorf("compose: %w", err)
	} else {
		sendStarted = true
		var id string
		id, outcome.Attempts, err = d.send(ctx, msg)
		outcome.MessageID = id
	}
	res.Attempts = outcome.Attempts

	if err != nil {
		text := err.Error()
		outcome.ErrorMessage = &text
		res.Error = text
		log.Error("last wish send failed", "action", "last_wish_send", "attempts", outcome.Attempts, "error", err)
		return res
	}
	sentAt := d.now().UTC()
	outcome.Status = models.DeliverySent
	outcome.SentAt = &sentAt
	res.Status = models.DeliverySent
	res.MessageID = outcome.MessageID
	log.Info("last wish sent", "action", "last_wish_send", "attempts", outcome.Attempts, "message_id", outcome.MessageID)
	return res
}

// finish closes the pending record. The send may already have happened, so
// the write must not be skipped because the run's context was cancelled.
func (d *Dispatcher) finish(ctx context.Context, log *slog.Logger, res *RecipientResult, outcome DeliveryOutcome) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := d.store.FinishDeliveryRecord(fctx, res.RecordID, outcome); err != nil {
		res.AuditError = err.Error()
		log.Error("delivery record finish failed", "action", "last_wish_send", "record_id", res.RecordID.String(), "error", err)
	}
}

// send makes up to MaxAttempts bounded attempts. Only errors the transport
// marks temporary are retried; a timeout is not, since the message may have
// been accepted.
func (d *Dispatcher) send(ctx context.Context, msg Message) (string, int, error) {
	backoff := d.cfg.Backoff
	for attempt := 1; ; attempt++ {
		sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		id, err := d.mailer.Send(sctx, msg)
		timedOut := errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()

		if err == nil {
			return id, attempt, nil
		}
		if timedOut {
			return "", attempt, fmt.Errorf("%w after %s: %v", ErrSendTimeout, d.cfg.SendTimeout, err)
		}
		if attempt >= d.cfg.MaxAttempts || !isTemporary(err) || ctx.Err() != nil {
			return "", attempt, err
		}
		if serr := d.sleep(ctx, backoff); serr != nil {
			return "", attempt, err
		}
		backoff *= 2
		if backoff > d.cfg.MaxBackoff {
			backoff = d.cfg.MaxBackoff
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
