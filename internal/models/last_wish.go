package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Category is one of the fixed data sections a user can include in their
// Last Wish export.
type Category string

const (
	CategoryAccounts     Category = "accounts"
	CategoryTransactions Category = "transactions"
	CategoryPurchases    Category = "purchases"
	CategoryLendBorrow   Category = "lendBorrow"
	CategorySavings      Category = "savings"
	CategoryAnalytics    Category = "analytics"
)

// Categories lists every category in export order.
var Categories = []Category{
	CategoryAccounts,
	CategoryTransactions,
	CategoryPurchases,
	CategoryLendBorrow,
	CategorySavings,
	CategoryAnalytics,
}

// Recipient is a third party who receives the export on delivery.
type Recipient struct {
	ID           string `json:"id" validate:"omitempty,max=64"`
	Email        string `json:"email" validate:"required,email,max=255"`
	Name         string `json:"name" validate:"max=255"`
	Relationship string `json:"relationship" validate:"max=100"`
}

// IncludeData selects the categories that go into the export. Unknown keys in
// the stored JSON are dropped on read.
type IncludeData struct {
	Accounts     bool `json:"accounts"`
	Transactions bool `json:"transactions"`
	Purchases    bool `json:"purchases"`
	LendBorrow   bool `json:"lendBorrow"`
	Savings      bool `json:"savings"`
	Analytics    bool `json:"analytics"`
}

// DefaultIncludeData mirrors the app's defaults: everything selected.
func DefaultIncludeData() IncludeData {
	return IncludeData{
		Accounts:     true,
		Transactions: true,
		Purchases:    true,
		LendBorrow:   true,
		Savings:      true,
		Analytics:    true,
	}
}

// Includes reports whether the category is selected.
func (d IncludeData) Includes(c Category) bool {
	switch c {
	case CategoryAccounts:
		return d.Accounts
	case CategoryTransactions:
		return d.Transactions
	case CategoryPurchases:
		return d.Purchases
	case CategoryLendBorrow:
		return d.LendBorrow
	case CategorySavings:
		return d.Savings
	case CategoryAnalytics:
		return d.Analytics
	default:
		return false
	}
}

// Selected returns the selected categories in export order.
func (d IncludeData) Selected() []Category {
	out := make([]Category, 0, len(Categories))
	for _, c := range Categories {
		if d.Includes(c) {
			out = append(out, c)
		}
	}
	return out
}

// CheckInSettings is the per-user dead man's switch configuration.
//
// CheckInFrequency is in days and is applied with raw arithmetic:
// deadline = LastCheckIn + CheckInFrequency*86400s. Fractional values encode
// sub-day intervals (0.003472 is roughly five minutes). Negative values put the
// deadline before the last check-in, so the user is overdue immediately, and
// zero makes them overdue right after it. There is no column default: gorm
// would otherwise replace an explicit zero with it on insert.
type CheckInSettings struct {
	UserID            uuid.UUID                       `gorm:"type:uuid;primaryKey" json:"user_id"`
	IsEnabled         bool                            `gorm:"not null;default:false;index:idx_last_wish_armed,priority:1" json:"is_enabled"`
	IsActive          bool                            `gorm:"not null;default:false;index:idx_last_wish_armed,priority:2" json:"is_active"`
	DeliveryTriggered bool                            `gorm:"not null;default:false;index:idx_last_wish_armed,priority:3" json:"delivery_triggered"`
	CheckInFrequency  float64                         `gorm:"not null" json:"check_in_frequency"`
	LastCheckIn       *time.Time                      `json:"last_check_in"`
	TriggeredAt       *time.Time                      `json:"triggered_at"`
	EpisodeID         *uuid.UUID                      `gorm:"type:uuid" json:"episode_id"`
	Recipients        datatypes.JSONSlice[Recipient]  `gorm:"type:jsonb;default:'[]'" json:"recipients" validate:"max=10,dive"`
	IncludeData       datatypes.JSONType[IncludeData] `gorm:"type:jsonb" json:"include_data" validate:"-"`
	Message           string                          `gorm:"type:text" json:"message" validate:"max=5000"`
	CreatedAt         time.Time                       `json:"created_at"`
	UpdatedAt         time.Time                       `json:"updated_at"`
	User              User                            `gorm:"foreignKey:UserID" json:"-" validate:"-"`
}

func (CheckInSettings) TableName() string { return "last_wish_settings" }

// Include returns the decoded category selection.
func (s CheckInSettings) Include() IncludeData {
	return s.IncludeData.Data()
}

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// DeliveryRecord is the append-only audit row for one recipient of one
// overdue episode. Only DeliveryStatus, SentAt, MessageID, Attempts and
// ErrorMessage change after insert, and only away from pending.
type DeliveryRecord struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index:idx_last_wish_deliveries_user_created,priority:1" json:"user_id"`
	EpisodeID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_last_wish_deliveries_episode_recipient,priority:1" json:"episode_id"`
	RecipientEmail string         `gorm:"size:255;not null;uniqueIndex:idx_last_wish_deliveries_episode_recipient,priority:2" json:"recipient_email"`
	RecipientName  string         `gorm:"size:255" json:"recipient_name"`
	DeliveryStatus DeliveryStatus `gorm:"size:20;not null;default:'pending';index" json:"delivery_status"`
	MessageID      string         `gorm:"size:255" json:"message_id,omitempty"`
	Attempts       int            `gorm:"not null;default:0" json:"attempts"`
	SentAt         *time.Time     `json:"sent_at"`
	ErrorMessage   *string        `gorm:"type:text" json:"error_message"`
	CreatedAt      time.Time      `gorm:"index:idx_last_wish_deliveries_user_created,priority:2" json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (DeliveryRecord) TableName() string { return "last_wish_deliveries" }
