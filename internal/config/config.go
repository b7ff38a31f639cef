package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mfields/weathervane/internal/weather"
)

// AppConfig is the immutable configuration surface consumed by the core.
// It is passed explicitly into constructors; nothing reads the environment
// after Load returns.
type AppConfig struct {
	PrimaryAPIKey   string
	SecondaryAPIKey string

	DefaultUnits  weather.Units
	ForecastDays  int
	WindThreshold float64 // m/s

	RequestTimeout time.Duration
	CacheTTL       time.Duration

	// Cities are warmed by the background scheduler at RefreshInterval.
	Cities          []string
	RefreshInterval time.Duration

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.PrimaryAPIKey = os.Getenv("VISUALCROSSING_API_KEY")
	cfg.SecondaryAPIKey = os.Getenv("OPENWEATHER_API_KEY")

	units := weather.Units(getenvDefault("DEFAULT_UNITS", string(weather.UnitsMetric)))
	if units != weather.UnitsMetric && units != weather.UnitsImperial {
		return nil, fmt.Errorf("invalid DEFAULT_UNITS: %q", units)
	}
	cfg.DefaultUnits = units

	cfg.ForecastDays = getenvInt("FORECAST_DAYS", 10)
	if cfg.ForecastDays < 1 || cfg.ForecastDays > 15 {
		return nil, fmt.Errorf("FORECAST_DAYS must be between 1 and 15, got %d", cfg.ForecastDays)
	}

	threshold, err := strconv.ParseFloat(getenvDefault("WIND_SPEED_THRESHOLD", "15"), 64)
	if err != nil || threshold <= 0 {
		return nil, fmt.Errorf("invalid WIND_SPEED_THRESHOLD: %v", err)
	}
	cfg.WindThreshold = threshold

	timeout, err := time.ParseDuration(getenvDefault("REQUEST_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}
	cfg.RequestTimeout = timeout

	ttl, err := time.ParseDuration(getenvDefault("CACHE_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	cfg.CacheTTL = ttl

	interval, err := time.ParseDuration(getenvDefault("REFRESH_INTERVAL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_INTERVAL: %w", err)
	}
	cfg.RefreshInterval = interval

	if cities := os.Getenv("WEATHER_CITIES"); cities != "" {
		for _, c := range strings.Split(cities, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cfg.Cities = append(cfg.Cities, c)
			}
		}
	}

	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
