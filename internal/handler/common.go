package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/armyboard/connection-service/internal/connection"
)

// getUserID extracts the authenticated user's id from the echo context.
// JWTAuth stores the raw "sub" claim, which arrives as float64 for numeric
// claims or as a string.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		if t > 0 {
			return uint64(t), nil
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// writeError translates a service error into a status and a flat
// {"error": ...} body.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, connection.ErrConflictExpired):
		// Clients refresh into the terminal state on this one.
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "stage": "expired"})
	case errors.Is(err, connection.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, connection.ErrNotAuthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, connection.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, connection.ErrStageClosed),
		errors.Is(err, connection.ErrAlreadySubmitted),
		errors.Is(err, connection.ErrListingUnavailable),
		errors.Is(err, connection.ErrConcurrentUpdate):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	c.Logger().Errorf("connection request failed: %v", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", connection.ErrValidation, msg)
}
