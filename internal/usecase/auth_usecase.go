package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
)

// Claim names issued by the backend identity provider, with their short
// aliases.
const (
	claimNameIdentifier = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"
	claimEmailAddress   = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"
	claimRole           = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"
	claimName           = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name"
)

var (
	idClaims    = []string{claimNameIdentifier, "nameid", "id", "sub"}
	emailClaims = []string{claimEmailAddress, "email"}
	roleClaims  = []string{claimRole, "role"}
	nameClaims  = []string{claimName, "unique_name", "name"}
)

type AuthOptions struct {
	// RequiredRole is compared case-insensitively. Defaults to "admin".
	RequiredRole string
	// Leeway is subtracted from the expiry before comparing with now.
	Leeway time.Duration
	// VerifySecret enables HMAC signature verification when set.
	VerifySecret string
}

type AuthUseCase struct {
	backend Authenticator
	opts    AuthOptions
	now     func() time.Time
}

func NewAuthUseCase(backend Authenticator, opts AuthOptions) *AuthUseCase {
	if opts.RequiredRole == "" {
		opts.RequiredRole = "admin"
	}
	return &AuthUseCase{
		backend: backend,
		opts:    opts,
		now:     time.Now,
	}
}

// Login exchanges credentials with the backend and accepts the session only
// for agents holding the required role.
func (uc *AuthUseCase) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	token, err := uc.backend.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, fmt.Errorf("backend login: %w", err)
	}
	agent, err := uc.Authenticate(token.AccessToken)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{
		Token:     token.AccessToken,
		Agent:     *agent,
		ExpiresAt: agent.ExpiresAt,
	}, nil
}

// Authenticate decodes the token and checks expiry and role.
func (uc *AuthUseCase) Authenticate(tokenString string) (*models.Agent, error) {
	agent, err := uc.Decode(tokenString)
	if err != nil {
		return nil, err
	}
	if !agent.ExpiresAt.IsZero() && !uc.now().Before(agent.ExpiresAt.Add(-uc.opts.Leeway)) {
		return nil, models.ErrTokenExpired
	}
	if !agent.HasRole(uc.opts.RequiredRole) {
		return nil, fmt.Errorf("%w: role %q", models.ErrForbidden, agent.Role)
	}
	if !strings.EqualFold(agent.Role, uc.opts.RequiredRole) {
		agent.Role = uc.opts.RequiredRole
	}
	return agent, nil
}

// Decode extracts the agent from the token claims. The signature is only
// checked when a verification secret is configured.
func (uc *AuthUseCase) Decode(tokenString string) (*models.Agent, error) {
	claims, err := uc.parseClaims(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidToken, err)
	}

	agent := &models.Agent{
		ID:    firstClaim(claims, idClaims),
		Email: firstClaim(claims, emailClaims),
		Role:  firstClaim(claims, roleClaims),
		Roles: allClaims(claims, roleClaims),
		Name:  firstClaim(claims, nameClaims),
	}
	if agent.Name == "" {
		agent.Name = strings.TrimSpace(firstClaim(claims, []string{"given_name", "firstName"}) + " " + firstClaim(claims, []string{"family_name", "lastName"}))
	}
	if agent.ID == "" || agent.Email == "" || agent.Role == "" {
		return nil, fmt.Errorf("%w: missing id, email or role claim", models.ErrInvalidToken)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		agent.ExpiresAt = exp.Time
	}
	return agent, nil
}

// Expiration returns the expiry of the token; zero when it has none.
func (uc *AuthUseCase) Expiration(tokenString string) (time.Time, error) {
	claims, err := uc.parseClaims(tokenString)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", models.ErrInvalidToken, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", models.ErrInvalidToken, err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// IsExpired treats tokens without expiry as valid and undecodable tokens as
// expired.
func (uc *AuthUseCase) IsExpired(tokenString string) bool {
	exp, err := uc.Expiration(tokenString)
	if err != nil {
		return true
	}
	if exp.IsZero() {
		return false
	}
	return !uc.now().Before(exp.Add(-uc.opts.Leeway))
}

func (uc *AuthUseCase) parseClaims(tokenString string) (jwt.MapClaims, error) {
	if strings.Count(tokenString, ".") != 2 {
		return nil, errors.New("token must have three parts")
	}

	claims := jwt.MapClaims{}
	if uc.opts.VerifySecret == "" {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, err
		}
		return claims, nil
	}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(uc.opts.VerifySecret), nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func firstClaim(claims jwt.MapClaims, names []string) string {
	for _, n := range names {
		switch v := claims[n].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		case []any:
			// role claims may be issued as arrays
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// allClaims returns every non-empty value of the first present claim.
func allClaims(claims jwt.MapClaims, names []string) []string {
	for _, n := range names {
		switch v := claims[n].(type) {
		case string:
			if v != "" {
				return []string{v}
			}
		case []any:
			var out []string
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}
