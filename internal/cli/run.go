package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/delivery"
)

// RunCmd is the scheduler entry point for an external cron.
type RunCmd struct {
	Now  string `help:"Evaluate deadlines at this RFC3339 instant instead of now."`
	JSON bool   `help:"Print the full report as JSON."`
}

func (c *RunCmd) Run(ctx *Context) error {
	now, err := ctx.parseNow(c.Now)
	if err != nil {
		return err
	}
	rep, err := ctx.Engine.RunCheck(ctx.Ctx, now)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(ctx.Out, rep)
	}
	if rep.LeaseSkipped {
		fmt.Fprintln(ctx.Out, "another run holds the lease; skipped")
		return nil
	}
	fmt.Fprintf(ctx.Out, "run %s: scanned %d, processed %d, delivered %d, failed %d, race lost %d (%s)\n",
		rep.RunID, rep.Scanned, rep.ProcessedCount, rep.Succeeded, rep.Failed, rep.RaceLost,
		rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
	for _, e := range rep.Errors {
		fmt.Fprintf(ctx.Out, "  %s [%s] %s\n", e.UserID, e.Stage, e.Message)
	}
	if rep.Failed > 0 {
		return fmt.Errorf("%d episode(s) failed", rep.Failed)
	}
	return nil
}

// TriggerCmd runs the pipeline for one user, checking they are overdue first.
type TriggerCmd struct {
	UserID string `arg:"" help:"User ID."`
	Now    string `help:"Evaluate the deadline at this RFC3339 instant instead of now."`
}

func (c *TriggerCmd) Run(ctx *Context) error {
	id, err := parseUser(c.UserID)
	if err != nil {
		return err
	}
	now, err := ctx.parseNow(c.Now)
	if err != nil {
		return err
	}

	res, err := ctx.Engine.TriggerUser(ctx.Ctx, id, now)
	var notYet *delivery.NotOverdueError
	if errors.As(err, &notYet) {
		return fmt.Errorf("user is not overdue yet: next check-in due %s", notYet.Deadline.Format(time.RFC3339))
	}
	if err != nil {
		return err
	}
	if err := printJSON(ctx.Out, res); err != nil {
		return err
	}
	if res.Outcome != delivery.OutcomeDelivered {
		return fmt.Errorf("trigger finished with outcome %s", res.Outcome)
	}
	return nil
}
