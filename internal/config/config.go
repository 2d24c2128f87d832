/**
 * @description
 * Configuration loader for the Tygia backend.
 * Responsible for reading environment variables, setting defaults, and performing strict validation.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files
 * - standard "os": For reading env vars
 *
 * @notes
 * - Fails fast if DATABASE_URL is missing.
 * - Uses a Singleton-like pattern where Load() returns a Config struct.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Redis    RedisConfig
	Scrapers ScrapersConfig
	Worker   WorkerConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
	Env  string // "development" or "production"
}

// DBConfig holds PostgreSQL settings
type DBConfig struct {
	URL string
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL string
}

// ScrapersConfig holds external data source endpoints
type ScrapersConfig struct {
	PNJAPIURL string
	XAUUSDURL string
	SBVAPIURL string
}

// WorkerConfig holds background job settings
type WorkerConfig struct {
	ScrapeInterval time.Duration
}

// Load reads .env file and populates the Config struct
func Load() (*Config, error) {
	// Attempt to load .env, but don't crash if it fails (prod might inject env vars directly)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("GO_ENV", "development"),
		},
		DB: DBConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Scrapers: ScrapersConfig{
			PNJAPIURL: getEnv("PNJ_API_URL", "https://edge-api.pnj.io/ecom-frontend/v1/get-gold-price-history"),
			XAUUSDURL: getEnv("XAU_USD_URL", "https://vn.investing.com/currencies/xau-usd"),
			SBVAPIURL: getEnv("SBV_API_URL", ""),
		},
		Worker: WorkerConfig{
			ScrapeInterval: time.Duration(getEnvAsInt("SCRAPE_INTERVAL_MINUTES", 60)) * time.Minute,
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks for required variables
func validate(cfg *Config) error {
	if cfg.DB.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Worker.ScrapeInterval < time.Minute {
		return fmt.Errorf("SCRAPE_INTERVAL_MINUTES must be at least 1")
	}
	return nil
}

// Helper to get env var with default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Helper to get env var as int
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
