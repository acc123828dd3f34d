package models

// ChatRoom is one customer conversation as listed by the dashboard. ID and
// CustomerID always carry the same value.
type ChatRoom struct {
	ID                   string `json:"id"`
	CustomerID           string `json:"customerId"`
	CustomerName         string `json:"customerName"`
	CustomerEmail        string `json:"customerEmail"`
	LastMessage          string `json:"lastMessage"`
	LastMessageTimestamp int64  `json:"lastMessageTimestamp"`
	UnreadCount          int    `json:"unreadCount"`
	IsOnline             bool   `json:"isOnline"`
}

// UnknownCustomerName is shown when a room carries no customer name.
const UnknownCustomerName = "Unknown User"

// Field names of room index records.
const (
	RoomFieldCustomerName         = "customerName"
	RoomFieldCustomerEmail        = "customerEmail"
	RoomFieldLastMessage          = "lastMessage"
	RoomFieldLastMessageTimestamp = "lastMessageTimestamp"
	RoomFieldUnreadCountAdmin     = "unreadCountAdmin"
	RoomFieldUnreadCountCustomer  = "unreadCountCustomer"
	RoomFieldCustomerOnline       = "customerOnline"
	RoomFieldMessages             = "messages"
)

// Field names of agent presence records.
const (
	PresenceFieldIsOnline = "isOnline"
	PresenceFieldLastSeen = "lastSeen"
)
