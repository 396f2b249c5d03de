package api

import (
	"encoding/json"
	"net/http"

	"cognify/backend/internal/chat"
	"cognify/backend/internal/models"
	"cognify/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// sseEvent is the wire shape of one server-sent event on a streaming turn.
type sseEvent struct {
	Type             string          `json:"type"`
	Text             string          `json:"text,omitempty"`
	UserMessage      *models.Message `json:"user_message,omitempty"`
	AssistantMessage *models.Message `json:"assistant_message,omitempty"`
	Title            string          `json:"title,omitempty"`
	Code             string          `json:"code,omitempty"`
	Message          string          `json:"message,omitempty"`
}

// streamEvents forwards a turn's event channel to the client as SSE. The
// response is committed with status 200 before the first fragment, so a
// mid-stream failure arrives as an error event, not an error status.
func streamEvents(c *gin.Context, events <-chan chat.Event) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for ev := range events {
		var out sseEvent
		switch ev.Type {
		case chat.EventFragment:
			out = sseEvent{Type: "fragment", Text: ev.Fragment}
		case chat.EventDone:
			out = sseEvent{
				Type:             "done",
				UserMessage:      ev.UserMessage,
				AssistantMessage: ev.AssistantMessage,
				Title:            ev.Title,
			}
		case chat.EventError:
			appErr := errors.FromError(ev.Err)
			out = sseEvent{Type: "error", Code: appErr.Code, Message: appErr.Message}
		}

		payload, err := json.Marshal(out)
		if err != nil {
			continue
		}
		if _, err := c.Writer.Write(append(append([]byte("data: "), payload...), '\n', '\n')); err != nil {
			// Client went away; the request context cancellation fails the
			// turn. Drain so the goroutine can finish and release the guard.
			for range events {
			}
			return
		}
		c.Writer.Flush()
	}
}

// abortWithError records err on the gin context so the error middleware
// formats the response.
func abortWithError(c *gin.Context, err error) {
	c.Error(err)
	c.Abort()
}
