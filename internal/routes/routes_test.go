package routes

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/apps"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/handlers"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type stubPlugin struct{}

func (stubPlugin) ID() string            { return "stub" }
func (stubPlugin) Models() []interface{} { return nil }
func (stubPlugin) RegisterRoutes(r fiber.Router, _ *gorm.DB, _ *config.Config) {
	r.Get("/stub", func(c *fiber.Ctx) error { return c.SendString("owner") })
}
func (stubPlugin) RegisterScheduledRoutes(r fiber.Router, guard fiber.Handler) {
	r.Post("/stub/run", guard, func(c *fiber.Ctx) error { return c.SendString("ran") })
}

var _ apps.ScheduledPlugin = stubPlugin{}

func newApp(ping func() error) *fiber.App {
	cfg := &config.Config{JWTSecret: "jwt", CronSecret: "cron"}
	app := fiber.New()
	Setup(app, cfg, nil, handlers.NewHealthHandler(ping, true, false), []apps.Plugin{stubPlugin{}})
	return app
}

func status(t *testing.T, app *fiber.App, req *http.Request) int {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestHealthIsPublic(t *testing.T) {
	if got := status(t, newApp(func() error { return nil }), httptest.NewRequest(http.MethodGet, "/api/health", nil)); got != fiber.StatusOK {
		t.Fatalf("health = %d", got)
	}
	down := newApp(func() error { return errors.New("db down") })
	if got := status(t, down, httptest.NewRequest(http.MethodGet, "/api/health", nil)); got != fiber.StatusServiceUnavailable {
		t.Fatalf("health with db down = %d", got)
	}
}

func TestCronGuardDoesNotLeak(t *testing.T) {
	app := newApp(func() error { return nil })

	// Owner route needs a JWT, not the cron secret.
	req := httptest.NewRequest(http.MethodGet, "/api/p/stub", nil)
	req.Header.Set("X-Cron-Secret", "cron")
	if got := status(t, app, req); got != fiber.StatusUnauthorized {
		t.Errorf("owner route with cron secret = %d, want 401", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/stub/run", nil)
	req.Header.Set("X-Cron-Secret", "cron")
	if got := status(t, app, req); got != fiber.StatusOK {
		t.Errorf("scheduled route = %d, want 200", got)
	}
	if got := status(t, app, httptest.NewRequest(http.MethodPost, "/api/stub/run", nil)); got != fiber.StatusUnauthorized {
		t.Errorf("scheduled route without secret = %d, want 401", got)
	}
}
