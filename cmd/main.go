package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"design-studio/internal/api"
	"design-studio/internal/api/routes"
	v1 "design-studio/internal/api/routes/v1"
	"design-studio/internal/config"
	"design-studio/internal/imagegen"
	"design-studio/internal/libraries"
	applog "design-studio/internal/log"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	settings, err := config.Load()
	applog.Init(applog.Options{
		Level:  settings.Logging.Level,
		Format: settings.Logging.Format,
		File:   settings.Logging.File,
	})
	log := applog.L()
	if envErr != nil {
		log.Warn(".env file not found")
	}
	if err != nil {
		fatal("failed to load config", err)
	}

	// Connect to database
	if err := config.ConnectDB(settings.Server.DBURL); err != nil {
		fatal("failed to connect to database", err)
	}
	defer config.CloseDB()

	// Run migrations
	if err := config.MigrateAllModels(settings.Server.Migrate); err != nil {
		fatal("failed to migrate database", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create and configure Fiber app
	app := api.NewServer()

	deps := v1.Dependencies{DB: config.DB, Hub: libraries.NewHub()}
	go deps.Hub.Run()
	defer deps.Hub.Stop()

	if settings.Storage.Bucket != "" {
		gcs, err := libraries.NewGCSThumbnailStore(ctx, settings.Storage.Bucket, settings.Storage.BaseURL)
		if err != nil {
			fatal("failed to init thumbnail bucket", err)
		}
		defer gcs.Close()
		deps.Thumbnails = gcs
	} else {
		local, err := libraries.NewLocalThumbnailStore(settings.Storage.LocalDir, settings.Storage.BaseURL)
		if err != nil {
			fatal("failed to init thumbnail directory", err)
		}
		app.Static(settings.Storage.BaseURL, settings.Storage.LocalDir)
		deps.Thumbnails = local
	}

	if settings.ImageGen.APIKey != "" {
		gen, err := imagegen.NewGeminiGenerator(ctx, settings.ImageGen.APIKey, settings.ImageGen.Model)
		if err != nil {
			fatal("failed to init image generation", err)
		}
		deps.Images = gen
	} else {
		log.Info("image generation disabled, GEMINI_API_KEY not set")
	}

	// Register routes
	routes.Register(app, deps)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		app.Shutdown()
	}()

	// Start server
	if err := api.StartServer(app, settings.Server.Port); err != nil {
		fatal("failed to start server", err)
	}
}

func fatal(msg string, err error) {
	applog.L().Error(msg, "error", err)
	os.Exit(1)
}
