package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/repo/backend"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger/log"
)

const (
	agentKey = "agent"
	tokenKey = "token"

	// TokenQueryParam carries the token for clients that cannot set headers,
	// such as browser WebSocket connections.
	TokenQueryParam = "token"
)

// TokenAuthenticator resolves a bearer token into an agent.
type TokenAuthenticator interface {
	Authenticate(token string) (*models.Agent, error)
}

// Auth admits only requests carrying a valid, unexpired admin token.
func Auth(authenticator TokenAuthenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractToken(c)
			if token == "" {
				return NewResponseError(http.StatusUnauthorized, "missing_token", errors.New("missing authorization token"))
			}

			agent, err := authenticator.Authenticate(token)
			if err != nil {
				return ToResponseError(err)
			}

			req := c.Request()
			ctx := backend.WithToken(req.Context(), token)
			log.WithFields(ctx, "agent_id", agent.ID)
			c.SetRequest(req.WithContext(ctx))
			c.Set(agentKey, agent)
			c.Set(tokenKey, token)
			return next(c)
		}
	}
}

func extractToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return c.QueryParam(TokenQueryParam)
}

// GetAgent returns the authenticated agent, nil outside the auth group.
func GetAgent(c echo.Context) *models.Agent {
	agent, _ := c.Get(agentKey).(*models.Agent)
	return agent
}

// GetToken returns the raw token of the authenticated request.
func GetToken(c echo.Context) string {
	token, _ := c.Get(tokenKey).(string)
	return token
}

// GetAgentID returns the id of the authenticated agent, or "".
func GetAgentID(c echo.Context) string {
	if agent := GetAgent(c); agent != nil {
		return agent.ID
	}
	return ""
}
