package usecase

import (
	"context"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
)

// EventPublisher forwards chat events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event models.ChatEvent) error
}

// Authenticator exchanges credentials for a backend access token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*models.BackendToken, error)
}
