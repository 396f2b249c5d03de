package models

import (
	"time"
)

// ConversationEntity is a chat session or a quiz thread. The two share a
// shape; a quiz thread is recognized by a non-empty AnchorMessageID.
//
// Messages and History are parallel views of the same conversation: every
// appended Message has exactly one History counterpart, while history-only
// entries (system prompts, anchor seeding) have no Message counterpart.
type ConversationEntity struct {
	ID          string         `json:"id"`
	OwnerUserID string         `json:"owner_user_id"`
	Title       string         `json:"title,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Messages    []Message      `json:"messages"`
	History     []HistoryEntry `json:"history"`
	// ChildThreadIDs lists quiz threads branched off this session.
	ChildThreadIDs []string `json:"child_thread_ids,omitempty"`

	// Quiz-thread fields, zero-valued for plain sessions.
	SessionID       string         `json:"session_id,omitempty"`
	AnchorMessageID string         `json:"anchor_message_id,omitempty"`
	AnchorMessage   *Message       `json:"anchor_message,omitempty"`
	PrevContext     []HistoryEntry `json:"prev_context,omitempty"`
}

// IsQuizThread reports whether the entity is a quiz thread rather than a
// plain session.
func (e *ConversationEntity) IsQuizThread() bool {
	return e.AnchorMessageID != ""
}

// FullHistory returns the complete model-facing context for the entity:
// prev_context (quiz threads only) followed by the entity's own history.
// The returned slice is a copy.
func (e *ConversationEntity) FullHistory() []HistoryEntry {
	out := make([]HistoryEntry, 0, len(e.PrevContext)+len(e.History))
	out = append(out, e.PrevContext...)
	out = append(out, e.History...)
	return out
}
