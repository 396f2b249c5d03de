package chat

import (
	"cognify/backend/internal/models"
)

// EventType discriminates turn events pushed to the caller.
type EventType string

const (
	// EventFragment carries one incremental piece of model output.
	EventFragment EventType = "fragment"
	// EventDone is the terminal success event with final turn metadata.
	EventDone EventType = "done"
	// EventError is the terminal failure event. Nothing was persisted for
	// the assistant side of the turn; fragments already delivered are the
	// caller's to keep or discard.
	EventError EventType = "error"
)

// Event is one item on a turn's event channel. Exactly one terminal event
// (EventDone or EventError) ends every turn.
type Event struct {
	Type     EventType
	Fragment string
	// Terminal metadata, set on EventDone.
	UserMessage      *models.Message
	AssistantMessage *models.Message
	Title            string
	// Set on EventError.
	Err error
}
