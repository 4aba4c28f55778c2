package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-autograder/internal/config"
	"github.com/noah-isme/gema-autograder/internal/handler"
	"github.com/noah-isme/gema-autograder/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GradingQueueHandler   *handler.GradingQueueHandler
	GradingHistoryHandler *handler.GradingHistoryHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	api.Get("/metrics", observability.MetricsHandler())

	grading := api.Group("/grading")

	if deps.GradingQueueHandler != nil {
		deps.GradingQueueHandler.Register(grading.Group("/queue"))
	}

	if deps.GradingHistoryHandler != nil {
		deps.GradingHistoryHandler.Register(grading.Group("/history"))
	}
}
