package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const serviceName = "field-booking-admin"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	deps map[string]Pinger
}

func NewHealthController(deps map[string]Pinger) *HealthController {
	return &HealthController{deps: deps}
}

type healthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (h *HealthController) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "healthy", Service: serviceName}
	code := http.StatusOK
	for name, dep := range h.deps {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string, len(h.deps))
		}
		if err := dep.Ping(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	return c.JSON(code, resp)
}
