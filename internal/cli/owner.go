package cli

import (
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/delivery"
)

type CheckInCmd struct {
	UserID string `arg:"" help:"User ID."`
}

func (c *CheckInCmd) Run(ctx *Context) error {
	id, err := parseUser(c.UserID)
	if err != nil {
		return err
	}
	at, deadline, err := ctx.Owner.CheckIn(ctx.Ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "checked in at %s; next deadline %s\n", at.Format(time.RFC3339), deadline.Format(time.RFC3339))
	return nil
}

type StatusCmd struct {
	UserID string `arg:"" help:"User ID."`
}

func (c *StatusCmd) Run(ctx *Context) error {
	id, err := parseUser(c.UserID)
	if err != nil {
		return err
	}
	st, err := ctx.Owner.Status(ctx.Ctx, id)
	if err != nil {
		return err
	}
	s := st.Settings
	fmt.Fprintf(ctx.Out, "enabled=%t active=%t triggered=%t frequency=%gd recipients=%d\n",
		s.IsEnabled, s.IsActive, s.DeliveryTriggered, s.CheckInFrequency, st.RecipientCount)
	switch {
	case st.Deadline == nil:
		fmt.Fprintln(ctx.Out, "no check-in recorded")
	case st.Overdue:
		fmt.Fprintf(ctx.Out, "OVERDUE by %.2fh (deadline %s)\n", st.HoursOverdue, st.Deadline.Format(time.RFC3339))
	default:
		fmt.Fprintf(ctx.Out, "due in %.2fh (deadline %s)\n", st.HoursRemaining, st.Deadline.Format(time.RFC3339))
	}
	return nil
}

type DeliveriesCmd struct {
	UserID string `arg:"" help:"User ID."`
	Limit  int    `help:"Maximum records to show." default:"20"`
}

func (c *DeliveriesCmd) Run(ctx *Context) error {
	id, err := parseUser(c.UserID)
	if err != nil {
		return err
	}
	records, err := ctx.Owner.Deliveries(ctx.Ctx, delivery.DeliveryQuery{UserID: id, Limit: c.Limit})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(ctx.Out, "no deliveries")
		return nil
	}
	for _, r := range records {
		line := fmt.Sprintf("%s  %-7s  %-30s  attempts=%d  episode=%s",
			r.CreatedAt.Format(time.RFC3339), r.DeliveryStatus, r.RecipientEmail, r.Attempts, r.EpisodeID)
		if r.ErrorMessage != nil {
			line += "  error=" + *r.ErrorMessage
		}
		fmt.Fprintln(ctx.Out, line)
	}
	return nil
}
