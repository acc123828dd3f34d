package models

// Chat event types published after successful writes.
const (
	EventMessageSent  = "chat.message_sent"
	EventMessagesRead = "chat.messages_read"
	EventAgentStatus  = "chat.agent_status"
)

type ChatEvent struct {
	Type       string `json:"type"`
	CustomerID string `json:"customer_id,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
	Message    string `json:"message,omitempty"`
	Count      int    `json:"count,omitempty"`
	IsOnline   *bool  `json:"is_online,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// Key partitions events by conversation, falling back to the agent.
func (e ChatEvent) Key() string {
	if e.CustomerID != "" {
		return e.CustomerID
	}
	return e.AgentID
}
