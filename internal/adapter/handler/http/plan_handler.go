package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/marioschiavon/uplink/internal/domain/repository"
)

// PlanHandler serves the public plan catalog.
type PlanHandler struct {
	plans  repository.PlanRepository
	logger *zap.Logger
}

func NewPlanHandler(plans repository.PlanRepository, logger *zap.Logger) *PlanHandler {
	return &PlanHandler{plans: plans, logger: logger}
}

func (h *PlanHandler) List(c echo.Context) error {
	plans, err := h.plans.ListActive(c.Request().Context())
	if err != nil {
		h.logger.Error("plan listing failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to list plans"})
	}
	return c.JSON(http.StatusOK, echo.Map{"plans": plans})
}
