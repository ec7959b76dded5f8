package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// recentDeliveries is how many records Status returns.
const recentDeliveries = 10

// SettingsUpdate is a partial settings change from the owner. Nil fields keep
// their stored value.
type SettingsUpdate struct {
	IsEnabled        *bool
	IsActive         *bool
	CheckInFrequency *float64
	Recipients       []models.Recipient
	IncludeData      *models.IncludeData
	Message          *string
}

// Status is the owner's view of their switch.
type Status struct {
	Settings         *models.CheckInSettings `json:"settings"`
	Deadline         *time.Time              `json:"deadline"`
	Overdue          bool                    `json:"overdue"`
	HoursOverdue     float64                 `json:"hours_overdue"`
	HoursRemaining   float64                 `json:"hours_remaining"`
	RecipientCount   int                     `json:"recipient_count"`
	RecentDeliveries []models.DeliveryRecord `json:"recent_deliveries"`
}

// Service holds the owner-side operations: check-in, settings, status and
// export preview. It never claims or sends.
type Service struct {
	store   Store
	builder *Builder
	now     func() time.Time
}

func NewService(store Store, builder *Builder) *Service {
	return &Service{store: store, builder: builder, now: time.Now}
}

// Settings returns the owner's stored settings or ErrNotFound.
func (s *Service) Settings(ctx context.Context, userID uuid.UUID) (*models.CheckInSettings, error) {
	return s.store.GetSettings(ctx, userID)
}

// CheckIn records proof of life at now and returns it with the new deadline.
func (s *Service) CheckIn(ctx context.Context, userID uuid.UUID) (at, deadline time.Time, err error) {
	settings, err := s.store.GetSettings(ctx, userID)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	now := s.now().UTC()
	if err := s.store.UpdateCheckIn(ctx, userID, now); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return now, Deadline(now, settings.CheckInFrequency), nil
}

// SaveSettings applies an owner update. The first time the switch is enabled
// without a prior check-in, now counts as the check-in. Trigger state is
// never changed here.
func (s *Service) SaveSettings(ctx context.Context, userID uuid.UUID, u SettingsUpdate) (*models.CheckInSettings, error) {
	settings, err := s.store.GetSettings(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		settings = &models.CheckInSettings{
			UserID:           userID,
			CheckInFrequency: 30,
			Recipients:       datatypes.JSONSlice[models.Recipient]{},
			IncludeData:      datatypes.NewJSONType(models.DefaultIncludeData()),
		}
	case err != nil:
		return nil, err
	}

	if u.IsEnabled != nil {
		settings.IsEnabled = *u.IsEnabled
	}
	if u.IsActive != nil {
		settings.IsActive = *u.IsActive
	}
	if u.CheckInFrequency != nil {
		settings.CheckInFrequency = *u.CheckInFrequency
	}
	if u.Recipients != nil {
		rs := make(datatypes.JSONSlice[models.Recipient], len(u.Recipients))
		for i, r := range u.Recipients {
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			rs[i] = r
		}
		settings.Recipients = rs
	}
	if u.IncludeData != nil {
		settings.IncludeData = datatypes.NewJSONType(*u.IncludeData)
	}
	if u.Message != nil {
		settings.Message = *u.Message
	}

	if err := ValidateSettings(settings); err != nil {
		// A disabled switch may be saved before recipients are added.
		if !errors.Is(err, ErrNoRecipients) || settings.IsEnabled {
			return nil, err
		}
	}

	now := s.now().UTC()
	if settings.IsEnabled && settings.LastCheckIn == nil {
		settings.LastCheckIn = &now
	}
	settings.UpdatedAt = now
	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return nil, err
	}
	// The stored row may differ from what was written, e.g. a check-in that
	// landed in between.
	return s.store.GetSettings(ctx, userID)
}

// Status reports the deadline and recent deliveries as of now.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*Status, error) {
	settings, err := s.store.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListDeliveryRecords(ctx, DeliveryQuery{UserID: userID, Limit: recentDeliveries})
	if err != nil {
		return nil, err
	}
	st := &Status{
		Settings:         settings,
		RecipientCount:   len(settings.Recipients),
		RecentDeliveries: records,
	}
	if settings.LastCheckIn != nil {
		now := s.now()
		deadline := Deadline(*settings.LastCheckIn, settings.CheckInFrequency)
		st.Deadline = &deadline
		st.Overdue = IsOverdue(*settings.LastCheckIn, settings.CheckInFrequency, now)
		if st.Overdue {
			st.HoursOverdue = Lapsed(*settings.LastCheckIn, settings.CheckInFrequency, now).Hours()
		} else {
			st.HoursRemaining = deadline.Sub(now).Hours()
		}
	}
	return st, nil
}

// Preview builds the export exactly as recipients would get it, without
// claiming or sending anything.
func (s *Service) Preview(ctx context.Context, userID uuid.UUID) (*Payload, error) {
	settings, err := s.store.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	payload, err := s.builder.Build(ctx, userID, settings.Include())
	if err != nil {
		return nil, fmt.Errorf("build preview: %w", err)
	}
	return payload, nil
}

// Deliveries returns the audit trail for a user, newest first.
func (s *Service) Deliveries(ctx context.Context, q DeliveryQuery) ([]models.DeliveryRecord, error) {
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return nil, fmt.Errorf("%w: to is before from", ErrInvalidSettings)
	}
	return s.store.ListDeliveryRecords(ctx, q)
}
