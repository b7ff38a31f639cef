package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/mfields/weathervane/internal/api/http"
	"github.com/mfields/weathervane/internal/config"
	"github.com/mfields/weathervane/internal/scheduler"
	"github.com/mfields/weathervane/internal/store"
	"github.com/mfields/weathervane/internal/weather"
	"github.com/mfields/weathervane/internal/weather/providers"
)

func main() {
	// Load configuration (godotenv runs inside Load).
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.RequestTimeout,
	}

	geocoder := providers.NewGeoResolver(httpClient, cfg.SecondaryAPIKey)
	primary := providers.NewVisualCrossingProvider(httpClient, cfg.PrimaryAPIKey)
	secondary := providers.NewOpenWeatherProvider(httpClient, cfg.SecondaryAPIKey)

	cache := store.NewSessionCache(cfg.CacheTTL)

	orch := weather.NewOrchestrator(geocoder, primary, secondary, cache, weather.Config{
		ForecastDays:   cfg.ForecastDays,
		WindThreshold:  cfg.WindThreshold,
		RequestTimeout: cfg.RequestTimeout,
	})

	// Probe both provider credentials up front so misconfiguration shows up
	// in the logs before the first user query.
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	for name, ok := range orch.ValidateKeys(probeCtx) {
		if ok {
			log.Printf("provider %s: API key validated", name)
		} else {
			log.Printf("WARN: provider %s: API key validation failed", name)
		}
	}
	probeCancel()

	// Scheduler that periodically warms the cache for configured cities.
	sched := scheduler.New(cfg.Cities, cfg.DefaultUnits, cfg.RefreshInterval, orch)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weathervane",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weathervane",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, orch, geocoder, cfg.DefaultUnits)

	// Start server with graceful shutdown
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
