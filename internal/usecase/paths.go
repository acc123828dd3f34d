package usecase

import (
	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/repo/realtime"
)

const (
	rootChatRooms = "chatRooms"
	rootMessages  = "messages"
	rootAdmins    = "admins"
)

func roomPath(customerID string) string {
	return realtime.Join(rootChatRooms, customerID)
}

// roomMessagesPath is where RoomNested stores keep a customer's messages.
func roomMessagesPath(customerID string) string {
	return realtime.Join(rootChatRooms, customerID, models.RoomFieldMessages)
}

// customerMessagesPath is where CustomerNested stores keep a customer's messages.
func customerMessagesPath(customerID string) string {
	return realtime.Join(rootMessages, customerID)
}

func presencePath(agentID string) string {
	return realtime.Join(rootAdmins, agentID)
}
