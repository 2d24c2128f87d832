/**
 * @description
 * Exchange API handlers: latest/table/chart for central rates, market rates
 * and financial indices, plus the three upsert-mode import endpoints.
 *
 * Latest/table/chart report domain errors (unknown type/code, empty series) as
 * a `{status:"error"}` payload with HTTP 200 — callers are expected to check
 * the status field. Request-shape problems are HTTP 400.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tygia-project/backend/internal/services"
)

type ExchangeHandler struct {
	Service *services.ExchangeService
}

func NewExchangeHandler(service *services.ExchangeService) *ExchangeHandler {
	return &ExchangeHandler{Service: service}
}

// statusErrorPayload reports a domain error in the response body, mirroring
// how callers of these endpoints historically consume failures.
func statusErrorPayload(c *fiber.Ctx, message string) error {
	return c.JSON(fiber.Map{"status": statusError, "message": message})
}

func (h *ExchangeHandler) domainError(c *fiber.Ctx, err error) error {
	if errors.Is(err, services.ErrUnknownType) ||
		errors.Is(err, services.ErrNoData) ||
		services.IsNotFound(err) {
		return statusErrorPayload(c, err.Error())
	}
	return internalError(c, err)
}

// GetLatest returns the newest observation plus delta percent for one code
// GET /api/v1/exchange/latest?type=central&code=USD
func (h *ExchangeHandler) GetLatest(c *fiber.Ctx) error {
	typ := c.Query("type")
	code := c.Query("code")
	if typ == "" || code == "" {
		return badRequest(c, "type and code are required")
	}

	quote, err := h.Service.Latest(c.Context(), typ, code)
	if err != nil {
		return h.domainError(c, err)
	}
	return c.JSON(fiber.Map{"status": statusSuccess, "data": quote})
}

// GetTable returns the per-code snapshot for one day with prior-day deltas
// GET /api/v1/exchange/table?type=market&date=2024-06-10&code=USD
func (h *ExchangeHandler) GetTable(c *fiber.Ctx) error {
	typ := c.Query("type")
	if typ == "" {
		return badRequest(c, "type is required")
	}
	day := time.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return badRequest(c, "date must be YYYY-MM-DD")
		}
		day = parsed
	}

	rows, err := h.Service.Table(typ, day, c.Query("code"))
	if err != nil {
		return h.domainError(c, err)
	}
	return c.JSON(fiber.Map{
		"status": statusSuccess,
		"date":   day.Format("2006-01-02"),
		"data":   rows,
	})
}

// GetChart returns daily series per code; unknown codes are silently omitted
// GET /api/v1/exchange/chart?type=market&code=USD&code=EUR&days=30
func (h *ExchangeHandler) GetChart(c *fiber.Ctx) error {
	typ := c.Query("type")
	codes := queryList(c, "code")
	if typ == "" || len(codes) == 0 {
		return badRequest(c, "type and at least one code are required")
	}
	days := c.QueryInt("days", 30)
	if days < 1 || days > maxChartDays {
		return badRequest(c, "days must be between 1 and 3650")
	}

	data, err := h.Service.Chart(typ, codes, days)
	if err != nil {
		return h.domainError(c, err)
	}
	return c.JSON(fiber.Map{"status": statusSuccess, "data": data})
}

// ImportCentral bulk-imports central rates (replace-on-conflict)
// POST /api/v1/exchange/import/central
func (h *ExchangeHandler) ImportCentral(c *fiber.Ctx) error {
	var items []services.CentralImportItem
	if err := json.Unmarshal(c.Body(), &items); err != nil {
		return badRequest(c, "body must be a JSON array of central rate records")
	}
	imported, skipped, err := h.Service.ImportCentralJSON(items)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"status": statusSuccess, "imported": imported, "skipped": skipped})
}

// ImportMarket bulk-imports market rates (replace-on-conflict)
// POST /api/v1/exchange/import/market
func (h *ExchangeHandler) ImportMarket(c *fiber.Ctx) error {
	var items []services.MarketImportItem
	if err := json.Unmarshal(c.Body(), &items); err != nil {
		return badRequest(c, "body must be a JSON array of market rate records")
	}
	imported, skipped, err := h.Service.ImportMarketJSON(items)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"status": statusSuccess, "imported": imported, "skipped": skipped})
}

// ImportIndex bulk-imports financial index values (replace-on-conflict)
// POST /api/v1/exchange/import/index
func (h *ExchangeHandler) ImportIndex(c *fiber.Ctx) error {
	var items []services.IndexImportItem
	if err := json.Unmarshal(c.Body(), &items); err != nil {
		return badRequest(c, "body must be a JSON array of index value records")
	}
	imported, skipped, err := h.Service.ImportIndexJSON(items)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(fiber.Map{"status": statusSuccess, "imported": imported, "skipped": skipped})
}
