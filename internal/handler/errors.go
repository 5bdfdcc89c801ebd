package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/eventhub-tickets/internal/service"
)

// artifactRetryAfter is sent with 503 responses for failed QR/PDF rendering.
const artifactRetryAfter = 5

// respondError writes the JSON error envelope for a service error.  Only
// the messages of client errors are shown; storage failures are logged and
// answered with a generic message.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error(), "code": "invalid_input"})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error(), "code": "not_found"})
	case errors.Is(err, service.ErrInsufficientInventory):
		return c.JSON(http.StatusConflict, echo.Map{"error": "not enough seats available", "code": "insufficient_inventory"})
	case errors.Is(err, service.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "code": "conflict"})
	case errors.Is(err, service.ErrArtifactGeneration):
		c.Response().Header().Set("Retry-After", strconv.Itoa(artifactRetryAfter))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "ticket artifact could not be generated", "code": "artifact_unavailable"})
	}
	log.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("route", c.Path()),
		zap.Error(err),
	)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "please try again later", "code": "internal_error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": "invalid_input"})
}

// parseID reads a numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
