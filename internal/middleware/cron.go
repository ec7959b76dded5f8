package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/dto"
	"github.com/gofiber/fiber/v2"
)

// CronRequired guards the scheduler trigger. The secret comes in X-Cron-Secret
// or as a bearer token, which is what hosted cron services send. With no
// CRON_SECRET configured the route is closed.
func CronRequired(cfg *config.Config) fiber.Handler {
	secret := []byte(cfg.CronSecret)

	return func(c *fiber.Ctx) error {
		if len(secret) == 0 {
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
				Error: true, Message: "Scheduler trigger is not configured",
			})
		}

		given := c.Get("X-Cron-Secret")
		if given == "" {
			given = strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(given), secret) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}
		return c.Next()
	}
}
