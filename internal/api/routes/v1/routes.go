package v1

import (
	"design-studio/internal/handlers"
	"design-studio/internal/libraries"
	"design-studio/internal/repo"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Dependencies are the shared services the v1 routes are built from.
// Designs overrides the gorm repository built from DB.
type Dependencies struct {
	DB         *gorm.DB
	Designs    repo.DesignRepoInterface
	Thumbnails libraries.ThumbnailStore
	Hub        *libraries.Hub
	Images     handlers.ImageGenerator
}

func RegisterRoutes(r fiber.Router, deps Dependencies) {
	registerHealth(r)
	registerDesigns(r, deps)
	registerWebSocket(r, deps)
}

func registerHealth(r fiber.Router) {
	r.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

func registerWebSocket(r fiber.Router, deps Dependencies) {
	if deps.Hub == nil {
		return
	}
	r.Get("/ws", libraries.WebSocketHandler(deps.Hub))
}
