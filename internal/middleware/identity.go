package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// userKey renders the authenticated subject stored by JWTAuth as a string
// for use in rate-limit keys.  It returns "anon" when no subject is set.
func userKey(c echo.Context) string {
	switch v := c.Get("user_id").(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case int:
		return strconv.Itoa(v)
	}
	return "anon"
}
