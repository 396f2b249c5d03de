package models

import (
	"time"
)

// Conversation roles. Only user and assistant messages are ever stored as
// Messages; system entries exist in model history alone.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single immutable entry in a conversation's message log.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryEntry is one role/content pair of the model-facing history. This is
// the exact shape sent to the completion provider.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History converts the message into its model-facing form.
func (m Message) History() HistoryEntry {
	return HistoryEntry{Role: m.Role, Content: m.Text}
}

// ValidRole reports whether role is one of the roles a stored Message may
// carry.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
