package lastwish

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/delivery"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Engine is the scheduler side: periodic runs and operator triggers.
type Engine interface {
	RunCheck(ctx context.Context, now time.Time) (*delivery.Report, error)
	TriggerUser(ctx context.Context, userID uuid.UUID, now time.Time) (*delivery.EpisodeResult, error)
}

// OwnerService is what the signed-in owner can do with their own switch.
type OwnerService interface {
	Settings(ctx context.Context, userID uuid.UUID) (*models.CheckInSettings, error)
	SaveSettings(ctx context.Context, userID uuid.UUID, u delivery.SettingsUpdate) (*models.CheckInSettings, error)
	CheckIn(ctx context.Context, userID uuid.UUID) (at, deadline time.Time, err error)
	Status(ctx context.Context, userID uuid.UUID) (*delivery.Status, error)
	Preview(ctx context.Context, userID uuid.UUID) (*delivery.Payload, error)
	Deliveries(ctx context.Context, q delivery.DeliveryQuery) ([]models.DeliveryRecord, error)
}

type Handler struct {
	engine   Engine
	owner    OwnerService
	allowNow bool
}

// NewHandler builds the handlers. allowNow enables the ?now= clock override
// on the scheduler trigger; it must be off in production.
func NewHandler(engine Engine, owner OwnerService, allowNow bool) *Handler {
	return &Handler{engine: engine, owner: owner, allowNow: allowNow}
}

func (h *Handler) GetSettings(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c)
	}

	s, err := h.owner.Settings(c.UserContext(), userID)
	if errors.Is(err, delivery.ErrNotFound) {
		return c.JSON(dto.DefaultSettingsResponse())
	}
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(dto.NewSettingsResponse(s))
}

func (h *Handler) SaveSettings(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.SaveSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	s, err := h.owner.SaveSettings(c.UserContext(), userID, delivery.SettingsUpdate{
		IsEnabled:        req.IsEnabled,
		IsActive:         req.IsActive,
		CheckInFrequency: req.CheckInFrequency,
		Recipients:       req.Recipients,
		IncludeData:      req.IncludeData,
		Message:          req.Message,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(dto.NewSettingsResponse(s))
}

func (h *Handler) CheckIn(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c)
	}

	at, deadline, err := h.owner.CheckIn(c.UserContext(), userID)
	if err != nil {
		return errorResponse(c, err)
	}
	slog.Info("last wish check-in", "user_id", userID.String(), "action", "last_wish_check_in")
	return c.JSON(dto.CheckInResponse{LastCheckIn: at, Deadline: deadline})
}

func (h *Handler) Status(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c)
	}

	st, err := h.owner.Status(c.UserContext(), userID)
	if err != nil {
		return errorResponse(c, err)
	}
	records := st.RecentDeliveries
	if records == nil {
		records = []models.DeliveryRecord{}
	}
	return c.JSON(dto.StatusResponse{
		Settings:         dto.NewSettingsResponse(st.Settings),
		Deadline:         st.Deadline,
		Overdue:          st.Overdue,
		HoursOverdue:     st.HoursOverdue,
		HoursRemaining:   st.HoursRemaining,
		RecipientCount:   st.RecipientCount,
		RecentDeliveries: records,
	})
}

// Preview returns the export as JSON, or one of its documents with
// ?format=json|xlsx as a download.
func (h *Handler) Preview(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c)
	}

	payload, err := h.owner.Preview(c.UserContext(), userID)
	if err != nil {
		return errorResponse(c, err)
	}

	format := strings.ToLower(c.Query("format"))
	if format == "" {
		return c.JSON(payload)
	}
	for _, doc := range payload.Documents {
		if strings.HasSuffix(doc.Filename, "."+format) {
			c.Attachment(doc.Filename)
			c.Set(fiber.HeaderContentType, doc.ContentType)
			return c.Send(doc.Data)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
		Error: true, Message: "No " + format + " document in this export",
	})
}

// Run is the scheduler trigger. ?now=RFC3339 evaluates deadlines at another
// instant, for testing schedules without waiting. Outside of test
// environments it is refused: a future instant would fire real deliveries.
func (h *Handler) Run(c *fiber.Ctx) error {
	if c.Query("now") != "" && !h.allowNow {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "now override is disabled in production",
		})
	}
	now, err := parseTime(c.Query("now"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "now must be RFC3339",
		})
	}

	report, err := h.engine.RunCheck(c.UserContext(), now)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(report)
}

func (h *Handler) Trigger(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid user ID",
		})
	}

	res, err := h.engine.TriggerUser(c.UserContext(), userID, time.Time{})
	var notYet *delivery.NotOverdueError
	if errors.As(err, &notYet) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.NotOverdueResponse{
			Error:       true,
			Message:     "User is not overdue yet",
			NextCheckIn: notYet.Deadline,
			CurrentTime: notYet.Now,
		})
	}
	if err != nil {
		return errorResponse(c, err)
	}

	slog.Info("manual last wish trigger", "user_id", userID.String(), "action", "last_wish_manual_trigger",
		"operator", middleware.Operator(c), "outcome", string(res.Outcome))
	code := fiber.StatusOK
	switch res.Outcome {
	case delivery.OutcomeFailed:
		code = fiber.StatusBadGateway
	case delivery.OutcomeRaceLost:
		code = fiber.StatusConflict
	}
	return c.Status(code).JSON(res)
}

func (h *Handler) Deliveries(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid user ID",
		})
	}
	from, err := parseTime(c.Query("from"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "from must be RFC3339",
		})
	}
	to, err := parseTime(c.Query("to"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "to must be RFC3339",
		})
	}

	limit := c.QueryInt("limit", 100)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	records, err := h.owner.Deliveries(c.UserContext(), delivery.DeliveryQuery{
		UserID: userID, From: from, To: to, Limit: limit,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	if records == nil {
		records = []models.DeliveryRecord{}
	}
	return c.JSON(dto.DeliveriesResponse{UserID: userID, Count: len(records), Deliveries: records})
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Message: "Unauthorized",
	})
}

// errorResponse maps engine errors to HTTP statuses. Anything unrecognised is
// a 500 and goes through the app's error handler so details stay hidden.
func errorResponse(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, delivery.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, delivery.ErrInvalidSettings), errors.Is(err, delivery.ErrNoRecipients):
		code = fiber.StatusBadRequest
	case errors.Is(err, delivery.ErrNotArmed), errors.Is(err, delivery.ErrAlreadyTriggered),
		errors.Is(err, delivery.ErrNoCheckIn):
		code = fiber.StatusConflict
	case errors.Is(err, delivery.ErrMailerNotConfigured):
		code = fiber.StatusServiceUnavailable
	}
	if code == fiber.StatusInternalServerError {
		return err
	}
	return c.Status(code).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
}
