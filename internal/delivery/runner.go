package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
	OutcomeRaceLost  Outcome = "race_lost"
)

// Stages name where an episode failed.
const (
	StageValidate = "validate"
	StageClaim    = "claim"
	StageLoad     = "load"
	StageExport   = "export"
	StageDispatch = "dispatch"
	StageRelease  = "release"
	StagePanic    = "panic"
)

// EpisodeError is a contained per-user failure.
type EpisodeError struct {
	UserID  uuid.UUID `json:"user_id"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
}

// EpisodeResult is what happened to one overdue user in one run.
type EpisodeResult struct {
	UserID      uuid.UUID        `json:"user_id"`
	EpisodeID   uuid.UUID        `json:"episode_id"`
	Outcome     Outcome          `json:"outcome"`
	Claimed     bool             `json:"claimed"`
	DaysOverdue float64          `json:"days_overdue"`
	Omitted     []OmittedSection `json:"omitted,omitempty"`
	Dispatch    *DispatchReport  `json:"dispatch,omitempty"`
	Error       *EpisodeError    `json:"error,omitempty"`
}

// Report is the aggregate result of one scheduler run.
type Report struct {
	RunID          uuid.UUID       `json:"run_id"`
	Now            time.Time       `json:"now"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	LeaseSkipped   bool            `json:"lease_skipped"`
	Scanned        int             `json:"scanned"`
	ProcessedCount int             `json:"processed_count"`
	Succeeded      int             `json:"succeeded"`
	Failed         int             `json:"failed"`
	RaceLost       int             `json:"race_lost"`
	Episodes       []EpisodeResult `json:"episodes"`
	Errors         []EpisodeError  `json:"errors"`
}

// Runner composes scan -> claim -> export -> dispatch. It keeps no state
// between calls; overlapping calls are safe because only one of them can win
// a given claim.
type Runner struct {
	store      Store
	scanner    *Scanner
	guard      *Guard
	builder    *Builder
	dispatcher *Dispatcher
	lease      RunLease
	clock      func() time.Time
}

type RunnerOption func(*Runner)

// WithRunLease skips a run when another one holds the lease.
func WithRunLease(l RunLease) RunnerOption {
	return func(r *Runner) { r.lease = l }
}

func WithClock(clock func() time.Time) RunnerOption {
	return func(r *Runner) { r.clock = clock }
}

func NewRunner(store Store, builder *Builder, dispatcher *Dispatcher, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:      store,
		scanner:    NewScanner(store),
		guard:      NewGuard(store),
		builder:    builder,
		dispatcher: dispatcher,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunCheck is the scheduler entry point. A zero now means the wall clock.
// Only a failed scan (or a missing mail transport) is returned as an error;
// everything that goes wrong for a single user lands in the report.
func (r *Runner) RunCheck(ctx context.Context, now time.Time) (*Report, error) {
	if now.IsZero() {
		now = r.clock()
	}
	report := &Report{
		RunID:     uuid.New(),
		Now:       now.UTC(),
		StartedAt: r.clock().UTC(),
		Episodes:  []EpisodeResult{},
		Errors:    []EpisodeError{},
	}
	log := slog.With("run_id", report.RunID.String(), "action", "last_wish_run")

	if r.dispatcher == nil || r.dispatcher.mailer == nil {
		return nil, ErrMailerNotConfigured
	}

	if r.lease != nil {
		release, ok, err := r.lease.Acquire(ctx)
		switch {
		case err != nil:
			log.Warn("run lease unavailable, continuing without it", "error", err)
		case !ok:
			log.Info("another run holds the lease, skipping")
			report.LeaseSkipped = true
			report.FinishedAt = r.clock().UTC()
			return report, nil
		default:
			defer release()
		}
	}

	candidates, err := r.scanner.ScanOverdue(ctx, now)
	if err != nil {
		log.Error("last wish scan failed", "error", err)
		return nil, err
	}
	report.Scanned = len(candidates)

	for _, c := range candidates {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, EpisodeError{
				UserID: c.UserID, Stage: StageClaim, Message: ctx.Err().Error(),
			})
			report.Failed++
			continue
		}
		res := r.process(ctx, c, now, report.RunID)
		report.add(res)
	}

	report.FinishedAt = r.clock().UTC()
	log.Info("last wish run finished",
		"scanned", report.Scanned,
		"processed", report.ProcessedCount,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"race_lost", report.RaceLost,
		"latency_ms", float64(report.FinishedAt.Sub(report.StartedAt).Milliseconds()),
	)
	return report, nil
}

func (rep *Report) add(res EpisodeResult) {
	rep.Episodes = append(rep.Episodes, res)
	if res.Claimed {
		rep.ProcessedCount++
	}
	switch res.Outcome {
	case OutcomeDelivered:
		rep.Succeeded++
	case OutcomeFailed:
		rep.Failed++
	case OutcomeRaceLost:
		rep.RaceLost++
	}
	if res.Error != nil {
		rep.Errors = append(rep.Errors, *res.Error)
	}
}

// TriggerUser is the operator path for a single user. It checks the user is
// armed and overdue and then runs the same validate/claim/export/dispatch
// pipeline as RunCheck.
func (r *Runner) TriggerUser(ctx context.Context, userID uuid.UUID, now time.Time) (*EpisodeResult, error) {
	if now.IsZero() {
		now = r.clock()
	}
	if r.dispatcher == nil || r.dispatcher.mailer == nil {
		return nil, ErrMailerNotConfigured
	}

	s, err := r.store.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch {
	case !s.IsEnabled || !s.IsActive:
		return nil, ErrNotArmed
	case s.DeliveryTriggered:
		return nil, ErrAlreadyTriggered
	case s.LastCheckIn == nil:
		return nil, ErrNoCheckIn
	}
	last := *s.LastCheckIn
	if !IsOverdue(last, s.CheckInFrequency, now) {
		return nil, &NotOverdueError{Deadline: Deadline(last, s.CheckInFrequency), Now: now}
	}

	res := r.process(ctx, Candidate{
		UserID:      s.UserID,
		Email:       s.User.Email,
		LastCheckIn: last,
		Deadline:    Deadline(last, s.CheckInFrequency),
		Lapsed:      Lapsed(last, s.CheckInFrequency, now),
		Settings:    *s,
	}, now, uuid.New())
	return &res, nil
}

func (r *Runner) process(ctx context.Context, c Candidate, now time.Time, runID uuid.UUID) (res EpisodeResult) {
	res = EpisodeResult{
		UserID:      c.UserID,
		EpisodeID:   uuid.New(),
		DaysOverdue: c.DaysOverdue(),
	}
	log := slog.With("run_id", runID.String(), "user_id", c.UserID.String(), "episode_id", res.EpisodeID.String())

	var (
		claim   Claim
		sending bool
	)
	defer func() {
		if p := recover(); p != nil {
			cause := fmt.Errorf("panic: %v", p)
			if res.Claimed && !sending {
				r.unclaim(ctx, &res, claim, StagePanic, cause)
				return
			}
			r.fail(&res, StagePanic, cause)
		}
	}()

	claim, won, err := r.guard.TryClaim(ctx, &c.Settings, res.EpisodeID, now)
	if err != nil {
		stage := StageClaim
		if errors.Is(err, ErrNoRecipients) || errors.Is(err, ErrInvalidSettings) || errors.Is(err, ErrNoCheckIn) {
			stage = StageValidate
		}
		r.fail(&res, stage, err)
		return res
	}
	if !won {
		res.Outcome = OutcomeRaceLost
		log.Info("claim not won, skipping", "action", "last_wish_claim")
		return res
	}
	res.Claimed = true
	log.Info("delivery claimed", "action", "last_wish_claim", "days_overdue", res.DaysOverdue)

	// Recipients may have changed between scan and claim.
	fresh, err := r.store.GetSettings(ctx, c.UserID)
	if err != nil {
		r.unclaim(ctx, &res, claim, StageLoad, err)
		return res
	}
	if err := ValidateSettings(fresh); err != nil {
		r.unclaim(ctx, &res, claim, StageValidate, err)
		return res
	}

	payload, err := r.builder.Build(ctx, c.UserID, fresh.Include())
	if err != nil {
		r.unclaim(ctx, &res, claim, StageExport, err)
		return res
	}
	res.Omitted = payload.Omitted

	// Dispatch only errors before its first send, so releasing is still safe
	// there. The claim is also handed back when no message reached the
	// transport, e.g. every audit insert failed. Any other outcome keeps it.
	sending = true
	dispatch, err := r.dispatcher.Dispatch(ctx, res.EpisodeID, c.UserID, fresh.Recipients, payload)
	if err != nil {
		r.unclaim(ctx, &res, claim, StageDispatch, err)
		return res
	}
	res.Dispatch = dispatch
	if dispatch.Attempted == 0 {
		r.unclaim(ctx, &res, claim, StageDispatch,
			fmt.Errorf("no send attempted for %d recipients: %s", len(dispatch.PerRecipient), firstError(dispatch)))
		return res
	}
	if !dispatch.Delivered() {
		r.fail(&res, StageDispatch, fmt.Errorf("all %d sends failed", dispatch.Attempted))
		return res
	}

	res.Outcome = OutcomeDelivered
	log.Info("last wish delivered", "action", "last_wish_deliver",
		"attempted", dispatch.Attempted, "succeeded", dispatch.Succeeded, "failed", dispatch.Failed)
	return res
}

// unclaim records the failure and hands the episode back; no send happened.
func (r *Runner) unclaim(ctx context.Context, res *EpisodeResult, claim Claim, stage string, cause error) {
	r.fail(res, stage, cause)
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.guard.Release(rctx, claim); err != nil {
		slog.Error("claim release failed; user stays triggered",
			"user_id", res.UserID.String(), "action", "last_wish_release", "error", err)
		res.Error.Message = fmt.Sprintf("%s; release failed: %v", res.Error.Message, err)
		return
	}
	res.Claimed = false
}

func firstError(d *DispatchReport) string {
	for _, pr := range d.PerRecipient {
		if pr.Error != "" {
			return pr.Error
		}
	}
	return "unknown"
}

func (r *Runner) fail(res *EpisodeResult, stage string, err error) {
	res.Outcome = OutcomeFailed
	res.Error = &EpisodeError{UserID: res.UserID, Stage: stage, Message: err.Error()}
	slog.Error("last wish episode failed",
		"user_id", res.UserID.String(), "action", "last_wish_"+stage, "error", err)
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("user_id", res.UserID.String())
		scope.SetTag("stage", stage)
		sentry.CaptureException(err)
	})
}
