package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	"github.com/google/uuid"
)

// Candidate is an overdue user found by one scan. It is never persisted.
type Candidate struct {
	UserID      uuid.UUID
	Email       string
	LastCheckIn time.Time
	Deadline    time.Time
	Lapsed      time.Duration
	Settings    models.CheckInSettings
}

// DaysOverdue is Lapsed expressed in (fractional) days.
func (c Candidate) DaysOverdue() float64 {
	return c.Lapsed.Hours() / 24
}

// Scanner finds overdue users. It only reads, so concurrent scans are safe.
type Scanner struct {
	store Store
}

func NewScanner(store Store) *Scanner {
	return &Scanner{store: store}
}

// ScanOverdue returns every armed user whose deadline is strictly before now.
// A store failure is returned as an error, never as an empty result.
func (s *Scanner) ScanOverdue(ctx context.Context, now time.Time) ([]Candidate, error) {
	rows, err := s.store.ListSettings(ctx, ArmedFilter())
	if err != nil {
		return nil, fmt.Errorf("scan overdue: %w", err)
	}

	var out []Candidate
	for _, row := range rows {
		if !row.IsEnabled || !row.IsActive || row.DeliveryTriggered {
			continue
		}
		if row.LastCheckIn == nil {
			continue
		}
		last := *row.LastCheckIn
		if !IsOverdue(last, row.CheckInFrequency, now) {
			continue
		}
		out = append(out, Candidate{
			UserID:      row.UserID,
			Email:       row.User.Email,
			LastCheckIn: last,
			Deadline:    Deadline(last, row.CheckInFrequency),
			Lapsed:      Lapsed(last, row.CheckInFrequency, now),
			Settings:    row,
		})
	}
	return out, nil
}
