// Package cli holds the lastwish command-line commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/delivery"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	"github.com/google/uuid"
)

// Engine is the slice of the delivery engine the commands drive.
type Engine interface {
	RunCheck(ctx context.Context, now time.Time) (*delivery.Report, error)
	TriggerUser(ctx context.Context, userID uuid.UUID, now time.Time) (*delivery.EpisodeResult, error)
}

// Owner is the owner-side service.
type Owner interface {
	CheckIn(ctx context.Context, userID uuid.UUID) (at, deadline time.Time, err error)
	Status(ctx context.Context, userID uuid.UUID) (*delivery.Status, error)
	Deliveries(ctx context.Context, q delivery.DeliveryQuery) ([]models.DeliveryRecord, error)
}

type Context struct {
	Ctx    context.Context
	Engine Engine
	Owner  Owner
	Out    io.Writer

	// Production refuses --now overrides.
	Production bool
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseUser(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", s, err)
	}
	return id, nil
}

func (c *Context) parseNow(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if c.Production {
		return time.Time{}, errors.New("--now is disabled in production")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --now, use RFC3339: %w", err)
	}
	return t, nil
}
