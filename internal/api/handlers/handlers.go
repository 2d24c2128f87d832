/**
 * @description
 * Shared handler helpers: multi-value query parsing and the common error
 * response shapes. Internal failures are logged in full server-side and
 * reported to clients as a generic message.
 */

package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/tygia-project/backend/internal/logger"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// queryList collects a query parameter that may be repeated or comma-separated
// (?code=USD&code=EUR or ?code=USD,EUR).
func queryList(c *fiber.Ctx, name string) []string {
	var out []string
	for _, raw := range c.Context().QueryArgs().PeekMulti(name) {
		for _, part := range strings.Split(string(raw), ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"status":  statusError,
		"message": message,
	})
}

func notFound(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"status":  statusError,
		"message": message,
	})
}

func internalError(c *fiber.Ctx, err error) error {
	logger.Error("❌ %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"status":  statusError,
		"message": "internal server error",
	})
}
