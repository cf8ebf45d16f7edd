package v1

import (
	"design-studio/internal/handlers"
	"design-studio/internal/repo"

	"github.com/gofiber/fiber/v2"
)

func registerDesigns(r fiber.Router, deps Dependencies) {
	// Initialize handler
	designRepo := deps.Designs
	if designRepo == nil {
		designRepo = repo.NewDesignRepository(deps.DB)
	}
	var events handlers.DesignEvents
	if deps.Hub != nil {
		events = deps.Hub
	}
	designHandler := handlers.NewDesignHandler(designRepo, deps.Thumbnails, events, deps.Images)

	// Register routes
	r.Get("/designs", designHandler.GetAllDesigns)
	r.Post("/designs", designHandler.CreateDesign)
	r.Put("/designs", designHandler.UpdateDesign)
	r.Post("/designs/generate-image", designHandler.GenerateImage)
	r.Get("/designs/:designId", designHandler.GetDesignByID)
	r.Delete("/designs/:designId", designHandler.DeleteDesign)
}
