package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/apps"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	db *gorm.DB,
	healthHandler *handlers.HealthHandler,
	plugins []apps.Plugin,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)

	// Scheduler trigger: cron secret only, applied per route
	cron := middleware.CronRequired(cfg)

	// Operator routes: admin token or an operator session
	admin := api.Group("/admin", middleware.OperatorRequired(cfg, middleware.UserRoles(db)))

	// Owner routes; the JWT group is separate so it doesn't affect public routes
	protected := api.Group("/p", middleware.JWTProtected(cfg))
	for _, p := range plugins {
		p.RegisterRoutes(protected, db, cfg)
		if ap, ok := p.(apps.AdminPlugin); ok {
			ap.RegisterAdminRoutes(admin, db, cfg)
		}
		if sp, ok := p.(apps.ScheduledPlugin); ok {
			sp.RegisterScheduledRoutes(api, cron)
		}
	}
}
