package models

import "fmt"

// SenderRole identifies the author side of a chat message.
type SenderRole string

const (
	SenderRoleAdmin    SenderRole = "admin"
	SenderRoleCustomer SenderRole = "customer"
)

// ParseSenderRole returns the role for a stored value. Only the two known
// roles are accepted.
func ParseSenderRole(v any) (SenderRole, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	switch SenderRole(s) {
	case SenderRoleAdmin, SenderRoleCustomer:
		return SenderRole(s), true
	}
	return "", false
}

// ChatMessage is a normalized message as rendered by the dashboard.
type ChatMessage struct {
	ID         string     `json:"id"`
	SenderID   string     `json:"senderId"`
	SenderName string     `json:"senderName"`
	SenderRole SenderRole `json:"senderRole"`
	Message    string     `json:"message"`
	Timestamp  int64      `json:"timestamp"` // epoch ms, sender clock
	Read       bool       `json:"read"`
}

func (m ChatMessage) String() string {
	return fmt.Sprintf("%s[%s@%d]", m.ID, m.SenderRole, m.Timestamp)
}

// Field names of message records in the realtime store.
const (
	FieldSenderID    = "senderId"
	FieldSenderName  = "senderName"
	FieldSenderRole  = "senderRole"
	FieldReceiverID  = "receiverId"
	FieldCustomerID  = "customerId"
	FieldMessage     = "message"
	FieldMessageText = "messageText" // legacy body field
	FieldTimestamp   = "timestamp"
	FieldType        = "type"
	FieldRead        = "read"
)

// MessageRecord is the canonical record written for outgoing messages. Both
// body fields are populated so older readers keep working.
type MessageRecord struct {
	SenderID    string     `json:"senderId"`
	SenderName  string     `json:"senderName"`
	SenderRole  SenderRole `json:"senderRole"`
	ReceiverID  string     `json:"receiverId"`
	CustomerID  string     `json:"customerId"`
	MessageText string     `json:"messageText"`
	Message     string     `json:"message"`
	Timestamp   int64      `json:"timestamp"`
	Type        string     `json:"type"`
	Read        bool       `json:"read"`
}

// Fields returns the record as a plain map for multi-path updates.
func (r MessageRecord) Fields() map[string]any {
	return map[string]any{
		FieldSenderID:    r.SenderID,
		FieldSenderName:  r.SenderName,
		FieldSenderRole:  string(r.SenderRole),
		FieldReceiverID:  r.ReceiverID,
		FieldCustomerID:  r.CustomerID,
		FieldMessageText: r.MessageText,
		FieldMessage:     r.Message,
		FieldTimestamp:   r.Timestamp,
		FieldType:        r.Type,
		FieldRead:        r.Read,
	}
}
