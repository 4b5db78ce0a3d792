package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/anonto42/lost-found/backend/internal/middleware"
)

// getUserIDFromContext returns the authenticated user's id, or "" when the
// request did not pass JWTAuthMiddleware.
func getUserIDFromContext(c echo.Context) string {
	id, _ := c.Get(middleware.ContextUserID).(string)
	return id
}
