package server

import (
	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
	pkgmdw "github.com/nguyentranbao-ct/field-booking-admin/internal/server/middleware"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/usecase"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger/log"
)

type AuthController struct {
	authUsecase *usecase.AuthUseCase
}

func NewAuthController(authUsecase *usecase.AuthUseCase) *AuthController {
	return &AuthController{authUsecase: authUsecase}
}

func (ac *AuthController) Login(c echo.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	ctx := c.Request().Context()
	resp, err := ac.authUsecase.Login(ctx, req)
	if err != nil {
		log.Warnw(ctx, "login rejected", "email", req.Email, "error", err)
		return nil, err
	}
	log.Infow(ctx, "agent logged in", "agent_id", resp.Agent.ID)
	return resp, nil
}

// Me returns the agent behind the presented token.
func (ac *AuthController) Me(c echo.Context, _ struct{}) (*models.Agent, error) {
	return pkgmdw.GetAgent(c), nil
}
