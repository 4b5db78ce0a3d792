package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// AdminTokenMiddleware guards operator endpoints with a shared X-Admin-Token
// header. With no token configured every request is refused.
func AdminTokenMiddleware(required string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if required == "" {
				return echo.NewHTTPError(http.StatusForbidden, "Admin endpoints are disabled")
			}
			supplied := c.Request().Header.Get("X-Admin-Token")
			if supplied == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Admin token required")
			}
			if subtle.ConstantTimeCompare([]byte(supplied), []byte(required)) != 1 {
				return echo.NewHTTPError(http.StatusForbidden, "Invalid admin token")
			}
			return next(c)
		}
	}
}
