package api

import (
	"net/http"

	"cognify/backend/internal/models"
	"cognify/backend/internal/quiz"
	apperrors "cognify/backend/pkg/errors"
	"cognify/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// QuizHandler exposes quiz threads: creation anchored at an assistant
// message, the streamed question, and answer evaluation.
type QuizHandler struct {
	manager *quiz.Manager
	logger  *logger.Logger
}

// NewQuizHandler creates a new quiz handler
func NewQuizHandler(manager *quiz.Manager, logger *logger.Logger) *QuizHandler {
	return &QuizHandler{manager: manager, logger: logger}
}

// Start creates (or returns) the quiz thread for an anchor message. Repeat
// calls with the same anchor return the same thread id.
func (h *QuizHandler) Start(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
		MessageID string `json:"message_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError("session_id and message_id are required"))
		return
	}

	quizID, err := h.manager.StartQuiz(c.Request.Context(), c.GetString("userId"), req.SessionID, req.MessageID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"quiz_id": quizID})
}

// Get returns a quiz thread snapshot including its transcript
func (h *QuizHandler) Get(c *gin.Context) {
	thread, ok := h.ownedThread(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, thread)
}

// Question streams a probing question about the thread's anchor, optionally
// focused on a highlighted excerpt.
func (h *QuizHandler) Question(c *gin.Context) {
	thread, ok := h.ownedThread(c)
	if !ok {
		return
	}

	var req struct {
		Highlight string `json:"highlight"`
	}
	// Body is optional; a missing or empty body means no highlight.
	_ = c.ShouldBindJSON(&req)

	events, err := h.manager.AskQuestion(c.Request.Context(), thread.ID, req.Highlight)
	if err != nil {
		abortWithError(c, err)
		return
	}
	streamEvents(c, events)
}

// Answer commits the learner's answer and streams the evaluation
func (h *QuizHandler) Answer(c *gin.Context) {
	thread, ok := h.ownedThread(c)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError("answer text is required"))
		return
	}

	events, err := h.manager.SubmitAnswer(c.Request.Context(), thread.ID, req.Text)
	if err != nil {
		abortWithError(c, err)
		return
	}
	streamEvents(c, events)
}

func (h *QuizHandler) ownedThread(c *gin.Context) (*models.ConversationEntity, bool) {
	quizID := c.Param("id")
	thread, err := h.manager.Get(quizID)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	if thread.OwnerUserID != c.GetString("userId") {
		abortWithError(c, apperrors.NewDomainNotFoundError("quiz thread not found"))
		return nil, false
	}
	return thread, true
}
