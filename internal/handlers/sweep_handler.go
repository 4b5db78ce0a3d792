package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/lost-found/backend/internal/claims"
)

// SweepHandler lets a scheduler trigger the periodic sweep over HTTP.
type SweepHandler struct {
	sweeper *claims.Sweeper
}

func NewSweepHandler(sweeper *claims.Sweeper) *SweepHandler {
	return &SweepHandler{sweeper: sweeper}
}

func (h *SweepHandler) RegisterSweepRoutes(g *echo.Group) {
	g.POST("/sweep", h.Sweep)
}

func (h *SweepHandler) Sweep(c echo.Context) error {
	res, err := h.sweeper.Run(c.Request().Context())
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, res)
}
