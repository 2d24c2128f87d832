/**
 * @description
 * Gold API handlers: current quote, daily table, chart series and the two
 * import paths (bulk JSON file and scraper-backed date range).
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 * - backend/internal/scrapers
 */

package handlers

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tygia-project/backend/internal/scrapers"
	"github.com/tygia-project/backend/internal/services"
)

const maxChartDays = 3650

type GoldHandler struct {
	Service *services.GoldService
	Fetcher scrapers.GoldFetcher
}

func NewGoldHandler(service *services.GoldService, fetcher scrapers.GoldFetcher) *GoldHandler {
	return &GoldHandler{Service: service, Fetcher: fetcher}
}

// GetCurrent returns the latest quote plus delta for one (gold type, location, unit)
// GET /api/v1/gold/current?gold_type=sjc&location=hcm&unit=tael
func (h *GoldHandler) GetCurrent(c *fiber.Ctx) error {
	goldType := c.Query("gold_type")
	location := c.Query("location")
	unit := c.Query("unit", "tael")
	if goldType == "" || location == "" {
		return badRequest(c, "gold_type and location are required")
	}

	row, err := h.Service.Current(c.Context(), goldType, location, unit)
	if err != nil {
		if services.IsNotFound(err) {
			return notFound(c, err.Error())
		}
		return internalError(c, err)
	}

	data := []services.GoldRow{}
	if row != nil {
		data = append(data, *row)
	}
	return c.JSON(fiber.Map{"status": statusSuccess, "data": data})
}

// GetTable returns the latest quote per (gold type, unit, location) for one day
// GET /api/v1/gold/table?date=2024-06-10
func (h *GoldHandler) GetTable(c *fiber.Ctx) error {
	day := time.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return badRequest(c, "date must be YYYY-MM-DD")
		}
		day = parsed
	}

	rows, err := h.Service.Table(day)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{
		"status": statusSuccess,
		"date":   day.Format("2006-01-02"),
		"data":   rows,
	})
}

// GetChart returns daily sell-price series per (gold type, location) pair.
// Every requested code must exist; an unknown one fails the whole request.
// GET /api/v1/gold/chart?gold_types=sjc&locations=hcm&days=30
func (h *GoldHandler) GetChart(c *fiber.Ctx) error {
	goldTypes := queryList(c, "gold_types")
	if len(goldTypes) == 0 {
		goldTypes = []string{"sjc"}
	}
	locations := queryList(c, "locations")
	if len(locations) == 0 {
		locations = []string{"hcm"}
	}
	days := c.QueryInt("days", 30)
	if days < 1 || days > maxChartDays {
		return badRequest(c, "days must be between 1 and 3650")
	}

	data, err := h.Service.Chart(goldTypes, locations, days)
	if err != nil {
		if services.IsNotFound(err) {
			return notFound(c, err.Error())
		}
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"status": statusSuccess, "data": data})
}

// ImportJSON bulk-imports gold quotes from a JSON array (skip-on-conflict)
// POST /api/v1/gold/import
func (h *GoldHandler) ImportJSON(c *fiber.Ctx) error {
	var items []services.GoldImportItem
	if err := json.Unmarshal(c.Body(), &items); err != nil {
		return badRequest(c, "body must be a JSON array of gold price records")
	}

	inserted, skipped, err := h.Service.ImportJSON(items)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":   statusSuccess,
		"inserted": inserted,
		"skipped":  skipped,
	})
}

type importRangeRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// ImportRange runs the scraper for every day in [start_date, end_date] and
// ingests the results day by day; one failed day doesn't stop the rest.
// POST /api/v1/gold/import-range
func (h *GoldHandler) ImportRange(c *fiber.Ctx) error {
	var req importRangeRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "body must be a JSON object with start_date and end_date")
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return badRequest(c, "start_date must be YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return badRequest(c, "end_date must be YYYY-MM-DD")
	}
	if start.After(end) {
		return badRequest(c, "start_date must not be after end_date")
	}

	result := h.Service.ImportRange(start, end, h.Fetcher)
	return c.JSON(fiber.Map{
		"status":   statusSuccess,
		"inserted": result.Inserted,
		"skipped":  result.Skipped,
		"data":     result.Report,
	})
}
