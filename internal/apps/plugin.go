package apps

import (
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/config"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Plugin defines the interface every feature module must implement.
type Plugin interface {
	// ID returns the unique plugin identifier used in logs.
	ID() string

	// Models returns the list of GORM model pointers for AutoMigrate.
	Models() []interface{}

	// RegisterRoutes mounts owner routes on the given Fiber group.
	// The group is prefixed with /api/p and has JWT middleware applied.
	RegisterRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config)
}

// AdminPlugin extends Plugin with admin-specific route registration.
type AdminPlugin interface {
	Plugin

	// RegisterAdminRoutes mounts admin-only routes on the given Fiber group.
	// The group has both JWT and Admin middleware applied.
	RegisterAdminRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config)
}

// ScheduledPlugin extends Plugin with routes called by an external scheduler.
type ScheduledPlugin interface {
	Plugin

	// RegisterScheduledRoutes mounts routes on the /api group. guard checks
	// the cron secret and must be applied to each route individually so it
	// does not leak onto the rest of /api.
	RegisterScheduledRoutes(router fiber.Router, guard fiber.Handler)
}
