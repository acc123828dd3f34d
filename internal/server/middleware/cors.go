package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSPattern compiles allowed origins into one pattern. Entries may use
// "*" as a wildcard, e.g. "https://*.example.com"; a lone "*" allows any origin.
func CORSPattern(origins []string) *regexp.Regexp {
	parts := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		parts = append(parts, strings.ReplaceAll(regexp.QuoteMeta(origin), `\*`, `.*`))
	}
	if len(parts) == 0 {
		return regexp.MustCompile(`^$`)
	}
	return regexp.MustCompile(`^(` + strings.Join(parts, "|") + `)$`)
}

// CORS return echo middleware that handle cors with regexp pattern
func CORS(pattern *regexp.Regexp) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			respHeader := c.Response().Header()
			respHeader.Add(echo.HeaderVary, echo.HeaderOrigin)
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if origin == "" || !pattern.MatchString(origin) {
				return next(c)
			}
			respHeader.Set(echo.HeaderAccessControlAllowOrigin, origin)
			respHeader.Set(echo.HeaderAccessControlAllowCredentials, "true")
			if c.Request().Method == http.MethodOptions {
				// `*` only may not cover Authorization header in Safari 12
				respHeader.Set(echo.HeaderAccessControlAllowHeaders, "*, Authorization")
				respHeader.Set(echo.HeaderAccessControlAllowMethods, "OPTIONS, POST, PUT, DELETE, GET, PATCH, HEAD")
				return c.NoContent(http.StatusOK)
			}

			return next(c)
		}
	}
}
