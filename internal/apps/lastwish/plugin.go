package lastwish

import (
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type LastWishPlugin struct {
	handler *Handler
}

func New(engine Engine, owner OwnerService, allowNow bool) *LastWishPlugin {
	return &LastWishPlugin{handler: NewHandler(engine, owner, allowNow)}
}

func (p *LastWishPlugin) ID() string { return "last-wish" }

func (p *LastWishPlugin) Models() []interface{} {
	return []interface{}{
		&models.CheckInSettings{},
		&models.DeliveryRecord{},
	}
}

func (p *LastWishPlugin) RegisterRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	router.Get("/last-wish/settings", p.handler.GetSettings)
	router.Put("/last-wish/settings", p.handler.SaveSettings)
	router.Post("/last-wish/check-in", p.handler.CheckIn)
	router.Get("/last-wish/status", p.handler.Status)
	router.Get("/last-wish/preview", p.handler.Preview)
}

func (p *LastWishPlugin) RegisterAdminRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	router.Post("/last-wish/trigger/:user_id", p.handler.Trigger)
	router.Get("/last-wish/deliveries/:user_id", p.handler.Deliveries)
}

func (p *LastWishPlugin) RegisterScheduledRoutes(router fiber.Router, guard fiber.Handler) {
	router.Post("/last-wish/run", guard, p.handler.Run)
	router.Get("/last-wish/run", guard, p.handler.Run)
}
