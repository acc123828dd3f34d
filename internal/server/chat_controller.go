package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/repo/backend"
	pkgmdw "github.com/nguyentranbao-ct/field-booking-admin/internal/server/middleware"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/usecase"
)

type ChatController struct {
	chatUsecase *usecase.ChatUseCase
	users       backend.Client
}

func NewChatController(chatUsecase *usecase.ChatUseCase, users backend.Client) *ChatController {
	return &ChatController{
		chatUsecase: chatUsecase,
		users:       users,
	}
}

type roomRequest struct {
	CustomerID string `param:"customer_id" validate:"required,nodekey"`
}

func (cc *ChatController) GetMessages(c echo.Context, req roomRequest) ([]models.ChatMessage, error) {
	return cc.chatUsecase.GetMessages(c.Request().Context(), req.CustomerID)
}

type sendMessageRequest struct {
	CustomerID string `param:"customer_id" validate:"required,nodekey"`
	AgentID    string `agent:"id" validate:"required"`
	AgentName  string `agent:"name"`
	Message    string `json:"message" validate:"required"`
}

func (cc *ChatController) SendMessage(c echo.Context, req sendMessageRequest) (*pkgmdw.Response, error) {
	msg, err := cc.chatUsecase.SendMessage(c.Request().Context(), usecase.SendMessageParams{
		CustomerID: req.CustomerID,
		AgentID:    req.AgentID,
		AgentName:  req.AgentName,
		Text:       req.Message,
	})
	if err != nil {
		return nil, err
	}
	return &pkgmdw.Response{Status: http.StatusCreated, Success: true, Data: msg}, nil
}

type markReadResponse struct {
	Updated int `json:"updated"`
}

func (cc *ChatController) MarkAsRead(c echo.Context, req roomRequest) (markReadResponse, error) {
	n, err := cc.chatUsecase.MarkMessagesAsRead(c.Request().Context(), req.CustomerID)
	return markReadResponse{Updated: n}, err
}

type agentStatusRequest struct {
	AgentID  string `agent:"id" validate:"required"`
	IsOnline *bool  `json:"is_online" validate:"required"`
}

func (cc *ChatController) UpdateStatus(c echo.Context, req agentStatusRequest) error {
	return cc.chatUsecase.UpdateAgentStatus(c.Request().Context(), req.AgentID, *req.IsOnline)
}

// GetCustomer looks the customer up in the booking backend for the chat
// side panel.
func (cc *ChatController) GetCustomer(c echo.Context, req roomRequest) (*models.User, error) {
	return cc.users.GetUser(c.Request().Context(), req.CustomerID)
}

func (cc *ChatController) ListCustomers(c echo.Context, req models.UserQuery) (*models.Paginated[models.User], error) {
	return cc.users.ListUsers(c.Request().Context(), req)
}
