package usecase

import (
	"context"
	"sync"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
)

// RoomSelector keeps at most one message subscription open: selecting a
// customer closes the feed of the previously selected one first.
type RoomSelector struct {
	uc         *ChatUseCase
	onMessages func(customerID string, msgs []models.ChatMessage)
	opts       []SubscribeOption

	mu         sync.Mutex
	customerID string
	current    *Subscription
}

func (uc *ChatUseCase) NewRoomSelector(onMessages func(customerID string, msgs []models.ChatMessage), opts ...SubscribeOption) *RoomSelector {
	return &RoomSelector{uc: uc, onMessages: onMessages, opts: opts}
}

// Select switches the feed to customerID. Selecting the current customer
// again keeps the open subscription.
func (r *RoomSelector) Select(ctx context.Context, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.customerID == customerID {
		return nil
	}
	if r.current != nil {
		r.current.Close()
		r.current = nil
		r.customerID = ""
	}

	sub, err := r.uc.SubscribeToMessages(ctx, customerID, func(msgs []models.ChatMessage) {
		r.onMessages(customerID, msgs)
	}, r.opts...)
	if err != nil {
		return err
	}
	r.current = sub
	r.customerID = customerID
	return nil
}

// Selected returns the customer currently fed, or "".
func (r *RoomSelector) Selected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.customerID
}

func (r *RoomSelector) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		r.current.Close()
		r.current = nil
		r.customerID = ""
	}
}
