package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Expirer runs one expiry batch.  *service.ConnectionService implements it.
type Expirer interface {
	ExpireDue(ctx context.Context, limit int) (int, error)
}

// AdminHandler exposes operational endpoints restricted to ADMIN tokens.
type AdminHandler struct {
	Exp          Expirer
	DefaultBatch int
}

// NewAdminHandler builds the handler.  batch is used when the request
// does not set ?limit.
func NewAdminHandler(exp Expirer, batch int) *AdminHandler {
	if exp == nil {
		panic("nil expirer passed to NewAdminHandler")
	}
	if batch < 1 {
		batch = 100
	}
	return &AdminHandler{Exp: exp, DefaultBatch: batch}
}

// Sweep handles POST /v1/admin/sweep.  It expires one batch immediately
// instead of waiting for the next sweeper tick and returns the count.
func (h *AdminHandler) Sweep(c echo.Context) error {
	limit := h.DefaultBatch
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit must be between 1 and 1000"})
		}
		limit = n
	}
	n, err := h.Exp.ExpireDue(c.Request().Context(), limit)
	if err != nil {
		c.Logger().Errorf("admin sweep: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sweep failed", "expired": n})
	}
	return c.JSON(http.StatusOK, echo.Map{"expired": n})
}
