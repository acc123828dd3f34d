package models

import (
	"strings"
	"time"
)

// Agent is the dashboard operator identified by the bearer token.
type Agent struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Roles     []string  `json:"roles,omitempty"`
	Name      string    `json:"name,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// HasRole reports whether any of the agent's roles matches, ignoring case.
func (a Agent) HasRole(role string) bool {
	for _, r := range a.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return strings.EqualFold(a.Role, role)
}

// DisplayName is the name written on outgoing messages.
func (a Agent) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	if a.Email != "" {
		return a.Email
	}
	return "Admin"
}

// LoginRequest represents the email login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents the login response with the backend token
type LoginResponse struct {
	Token     string    `json:"token"`
	Agent     Agent     `json:"agent"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BackendToken is the token payload returned by the backend login endpoint.
type BackendToken struct {
	AccessToken           string `json:"accessToken"`
	RefreshToken          string `json:"refreshToken"`
	AccessTokenExpiresAt  int64  `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt int64  `json:"refreshTokenExpiresAt"`
}
