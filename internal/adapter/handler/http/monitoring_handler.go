package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/marioschiavon/uplink/internal/lifecycle"
)

// MonitoringHandler exposes the lifecycle controller's internals to admins.
type MonitoringHandler struct {
	manager *lifecycle.Manager
	started time.Time
	version string
}

func NewMonitoringHandler(manager *lifecycle.Manager, version string) *MonitoringHandler {
	return &MonitoringHandler{manager: manager, started: time.Now(), version: version}
}

// Tasks lists every tracked session and its observed phase.
func (h *MonitoringHandler) Tasks(c echo.Context) error {
	snapshot := h.manager.Snapshot()
	return c.JSON(http.StatusOK, echo.Map{
		"tasks": snapshot,
		"count": len(snapshot),
	})
}

// Status reports process-level health for dashboards.
func (h *MonitoringHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"version":        h.version,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"tracked":        len(h.manager.Snapshot()),
	})
}
