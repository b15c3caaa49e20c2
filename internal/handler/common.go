// Package handler defines the HTTP handlers for auth, slots, swap
// requests and the AI advisory endpoints.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/slotswap/slot-swap-api/internal/repository"
)

// getUserID extracts the authenticated user's id from the echo context.
// JWT numeric claims arrive as float64 through MapClaims.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get("user_id").(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// pathID parses a numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// swapErrorResponse maps the repository sentinel errors to HTTP
// responses.  Validation failures are 400, authorization failures 403,
// missing resources 404, and anything concurrent or already-claimed 409.
func swapErrorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrInvalidState):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "slot or request is not in a state that allows this operation"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not allowed"})
	case errors.Is(err, repository.ErrSlotNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "slot not found"})
	case errors.Is(err, repository.ErrSwapRequestNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "swap request not found"})
	case errors.Is(err, repository.ErrSelfSwap):
		return c.JSON(http.StatusConflict, echo.Map{"error": "cannot swap with your own slot"})
	case errors.Is(err, repository.ErrSlotLocked):
		return c.JSON(http.StatusConflict, echo.Map{"error": "slot is part of a pending swap"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "slot was claimed by a concurrent swap, try again"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
