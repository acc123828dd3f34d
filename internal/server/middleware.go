package server

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	pkgmdw "github.com/nguyentranbao-ct/field-booking-admin/internal/server/middleware"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger/log"
)

func quietPath(c echo.Context) bool {
	path := c.Request().URL.Path
	return path == "/health" || path == "/metrics" || strings.HasPrefix(path, "/debug/pprof")
}

func logRequestConfig() pkgmdw.LogRequestConfig {
	return pkgmdw.LogRequestConfig{
		Logger: logger.MustNamed("http"),
		Enabled: func(c echo.Context) bool {
			return !quietPath(c)
		},
		// credentials must never reach the logs
		RequestBody: func(c echo.Context) bool {
			return !strings.HasSuffix(c.Path(), "/auth/login")
		},
		ResponseBody: func(c echo.Context) bool {
			return !strings.HasSuffix(c.Path(), "/auth/login")
		},
	}
}

func recoverConfig() middleware.RecoverConfig {
	return middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Errorw(c.Request().Context(), "PANIC RECOVER", "error", err, "stack", string(stack))
			return err
		},
	}
}
