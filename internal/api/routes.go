/**
 * @description
 * API route definitions.
 * Wires repositories, services and handlers, and assigns routes to groups.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/api/handlers
 * - backend/internal/repository
 * - backend/internal/services
 * - backend/internal/scrapers
 */

package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/tygia-project/backend/internal/api/handlers"
	"github.com/tygia-project/backend/internal/config"
	"github.com/tygia-project/backend/internal/repository"
	"github.com/tygia-project/backend/internal/scrapers"
	"github.com/tygia-project/backend/internal/services"
	"gorm.io/gorm"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, db *gorm.DB, rdb *redis.Client, cfg *config.Config) {
	// 1. Repositories and services
	goldRepo := repository.NewGoldRepository(db)
	exchangeRepo := repository.NewExchangeRepository(db)
	goldService := services.NewGoldServiceFromRepository(goldRepo, rdb)
	exchangeService := services.NewExchangeServiceFromRepository(exchangeRepo, rdb)

	// 2. Handlers
	pnjScraper := scrapers.NewPNJScraper(cfg.Scrapers.PNJAPIURL)
	goldHandler := handlers.NewGoldHandler(goldService, pnjScraper)
	exchangeHandler := handlers.NewExchangeHandler(exchangeService)

	// 3. Routes
	api := app.Group("/api")
	v1 := api.Group("/v1")

	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	gold := v1.Group("/gold")
	gold.Get("/current", goldHandler.GetCurrent)
	gold.Get("/table", goldHandler.GetTable)
	gold.Get("/chart", goldHandler.GetChart)
	gold.Post("/import", goldHandler.ImportJSON)
	gold.Post("/import-range", goldHandler.ImportRange)

	exchange := v1.Group("/exchange")
	exchange.Get("/latest", exchangeHandler.GetLatest)
	exchange.Get("/table", exchangeHandler.GetTable)
	exchange.Get("/chart", exchangeHandler.GetChart)
	exchange.Post("/import/central", exchangeHandler.ImportCentral)
	exchange.Post("/import/market", exchangeHandler.ImportMarket)
	exchange.Post("/import/index", exchangeHandler.ImportIndex)
}
