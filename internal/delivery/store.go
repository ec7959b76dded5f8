package delivery

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	"github.com/google/uuid"
)

// SettingsFilter narrows ListSettings. Nil fields are not filtered on.
type SettingsFilter struct {
	Enabled           *bool
	Active            *bool
	DeliveryTriggered *bool
}

// ArmedFilter selects users the scanner may consider: enabled, active and not
// yet triggered.
func ArmedFilter() SettingsFilter {
	t, f := true, false
	return SettingsFilter{Enabled: &t, Active: &t, DeliveryTriggered: &f}
}

// Claim identifies one overdue episode. LastCheckIn is the value the scanner
// saw; a check-in that lands before the claim changes it and makes the claim
// miss.
type Claim struct {
	UserID      uuid.UUID
	LastCheckIn time.Time
	EpisodeID   uuid.UUID
	At          time.Time
}

// DeliveryOutcome is the terminal state written onto a pending DeliveryRecord.
type DeliveryOutcome struct {
	Status       models.DeliveryStatus
	MessageID    string
	Attempts     int
	SentAt       *time.Time
	ErrorMessage *string
}

// DeliveryQuery selects delivery records for one user. Zero From/To are open
// bounds; Limit <= 0 means no limit.
type DeliveryQuery struct {
	UserID uuid.UUID
	From   time.Time
	To     time.Time
	Limit  int
}

// Store is the persistence boundary for the whole engine.
type Store interface {
	ListSettings(ctx context.Context, filter SettingsFilter) ([]models.CheckInSettings, error)
	// GetSettings returns ErrNotFound when the user has no settings row.
	GetSettings(ctx context.Context, userID uuid.UUID) (*models.CheckInSettings, error)
	SaveSettings(ctx context.Context, settings *models.CheckInSettings) error

	// ClaimDelivery sets delivery_triggered=true only where it is currently
	// false and last_check_in still equals claim.LastCheckIn. It reports
	// whether this call changed the row.
	ClaimDelivery(ctx context.Context, claim Claim) (bool, error)
	// ReleaseDelivery undoes a claim of the same episode. Used only when no
	// send was attempted.
	ReleaseDelivery(ctx context.Context, claim Claim) (bool, error)
	// UpdateCheckIn advances last_check_in and clears delivery_triggered.
	UpdateCheckIn(ctx context.Context, userID uuid.UUID, at time.Time) error

	InsertDeliveryRecord(ctx context.Context, record *models.DeliveryRecord) error
	FinishDeliveryRecord(ctx context.Context, id uuid.UUID, outcome DeliveryOutcome) error
	ListDeliveryRecords(ctx context.Context, query DeliveryQuery) ([]models.DeliveryRecord, error)
}

// Attachment is a file carried by an outbound message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is what the mail transport sends.
type Message struct {
	To          string
	ToName      string
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}

// Mailer sends one message and returns the transport's message id.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Composer turns an export into the message for one recipient.
type Composer interface {
	Compose(payload *Payload, recipient models.Recipient) (Message, error)
}

// CategorySource reads one data category for the export.
type CategorySource interface {
	Fetch(ctx context.Context, userID uuid.UUID) (Section, error)
}

// RunLease keeps overlapping scheduler runs from doing the same work. It is an
// optimisation only; the claim in the store is what prevents double delivery.
type RunLease interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}
