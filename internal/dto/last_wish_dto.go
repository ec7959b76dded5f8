package dto

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	"github.com/google/uuid"
)

// SaveSettingsRequest is a partial update; omitted fields keep their value.
type SaveSettingsRequest struct {
	IsEnabled        *bool               `json:"is_enabled"`
	IsActive         *bool               `json:"is_active"`
	CheckInFrequency *float64            `json:"check_in_frequency"`
	Recipients       []models.Recipient  `json:"recipients"`
	IncludeData      *models.IncludeData `json:"include_data"`
	Message          *string             `json:"message"`
}

type SettingsResponse struct {
	Configured        bool               `json:"configured"`
	IsEnabled         bool               `json:"is_enabled"`
	IsActive          bool               `json:"is_active"`
	DeliveryTriggered bool               `json:"delivery_triggered"`
	CheckInFrequency  float64            `json:"check_in_frequency"`
	LastCheckIn       *time.Time         `json:"last_check_in"`
	TriggeredAt       *time.Time         `json:"triggered_at"`
	Recipients        []models.Recipient `json:"recipients"`
	IncludeData       models.IncludeData `json:"include_data"`
	Message           string             `json:"message"`
}

func NewSettingsResponse(s *models.CheckInSettings) SettingsResponse {
	recipients := []models.Recipient(s.Recipients)
	if recipients == nil {
		recipients = []models.Recipient{}
	}
	return SettingsResponse{
		Configured:        true,
		IsEnabled:         s.IsEnabled,
		IsActive:          s.IsActive,
		DeliveryTriggered: s.DeliveryTriggered,
		CheckInFrequency:  s.CheckInFrequency,
		LastCheckIn:       s.LastCheckIn,
		TriggeredAt:       s.TriggeredAt,
		Recipients:        recipients,
		IncludeData:       s.Include(),
		Message:           s.Message,
	}
}

// DefaultSettingsResponse is shown to owners who never saved settings.
func DefaultSettingsResponse() SettingsResponse {
	return SettingsResponse{
		CheckInFrequency: 30,
		Recipients:       []models.Recipient{},
		IncludeData:      models.DefaultIncludeData(),
	}
}

type CheckInResponse struct {
	LastCheckIn time.Time `json:"last_check_in"`
	Deadline    time.Time `json:"deadline"`
}

type StatusResponse struct {
	Settings         SettingsResponse        `json:"settings"`
	Deadline         *time.Time              `json:"deadline"`
	Overdue          bool                    `json:"overdue"`
	HoursOverdue     float64                 `json:"hours_overdue"`
	HoursRemaining   float64                 `json:"hours_remaining"`
	RecipientCount   int                     `json:"recipient_count"`
	RecentDeliveries []models.DeliveryRecord `json:"recent_deliveries"`
}

type NotOverdueResponse struct {
	Error       bool      `json:"error"`
	Message     string    `json:"message"`
	NextCheckIn time.Time `json:"next_check_in"`
	CurrentTime time.Time `json:"current_time"`
}

type DeliveriesResponse struct {
	UserID     uuid.UUID               `json:"user_id"`
	Count      int                     `json:"count"`
	Deliveries []models.DeliveryRecord `json:"deliveries"`
}
