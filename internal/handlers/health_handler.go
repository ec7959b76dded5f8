package handlers

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/dto"
	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	ping           func() error
	mailConfigured bool
	runLease       bool
}

func NewHealthHandler(ping func() error, mailConfigured, runLease bool) *HealthHandler {
	return &HealthHandler{ping: ping, mailConfigured: mailConfigured, runLease: runLease}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status, dbStatus := "ok", "ok"
	if err := h.ping(); err != nil {
		status = "degraded"
		dbStatus = "unhealthy: " + err.Error()
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(dto.HealthResponse{
		Status:         status,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		DB:             dbStatus,
		MailConfigured: h.mailConfigured,
		RunLease:       h.runLease,
	})
}
