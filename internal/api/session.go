package api

import (
	"errors"
	"net/http"

	"cognify/backend/internal/chat"
	"cognify/backend/internal/graph"
	"cognify/backend/internal/models"
	"cognify/backend/internal/store"
	apperrors "cognify/backend/pkg/errors"
	"cognify/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SessionHandler exposes chat sessions: creation, listing, transcript reads
// and the streaming tutoring turn.
type SessionHandler struct {
	store  store.Store
	orch   *chat.Orchestrator
	graphs *graph.Service
	logger *logger.Logger
}

// NewSessionHandler creates a new session handler. graphs may be nil when
// the knowledge graph feature is disabled.
func NewSessionHandler(st store.Store, orch *chat.Orchestrator, graphs *graph.Service, logger *logger.Logger) *SessionHandler {
	return &SessionHandler{store: st, orch: orch, graphs: graphs, logger: logger}
}

// Create starts a new empty session owned by the caller
func (h *SessionHandler) Create(c *gin.Context) {
	userID := c.GetString("userId")

	session, err := h.store.CreateSession(userID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.logger.Info("Session created", "session_id", session.ID, "user_id", userID)
	c.JSON(http.StatusCreated, session)
}

// List returns the caller's sessions, most recent first
func (h *SessionHandler) List(c *gin.Context) {
	userID := c.GetString("userId")

	sessions, err := h.store.ListSessions(userID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// Get returns a full session snapshot including its transcript
func (h *SessionHandler) Get(c *gin.Context) {
	entity, ok := h.ownedEntity(c)
	if !ok {
		return
	}
	if entity.IsQuizThread() {
		abortWithError(c, apperrors.NewDomainNotFoundError("session not found"))
		return
	}
	c.JSON(http.StatusOK, entity)
}

// SendMessage runs one tutoring turn and streams the assistant reply as SSE.
// The user message is committed before the model call starts.
func (h *SessionHandler) SendMessage(c *gin.Context) {
	entity, ok := h.ownedEntity(c)
	if !ok {
		return
	}
	if entity.IsQuizThread() {
		abortWithError(c, apperrors.NewDomainNotFoundError("session not found"))
		return
	}

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, apperrors.NewInvalidInputError("message text is required"))
		return
	}

	events, err := h.orch.ChatTurn(c.Request.Context(), entity.ID, req.Text)
	if err != nil {
		abortWithError(c, err)
		return
	}

	// New turns change what the knowledge graph would say.
	if h.graphs != nil {
		h.graphs.Invalidate(entity.OwnerUserID)
	}

	streamEvents(c, events)
}

// ownedEntity loads the :id entity and enforces ownership. On failure it
// aborts the request and returns ok=false.
func (h *SessionHandler) ownedEntity(c *gin.Context) (*models.ConversationEntity, bool) {
	entityID := c.Param("id")
	entity, err := h.store.Get(entityID)
	if err != nil {
		if errors.Is(err, store.ErrEntityNotFound) {
			abortWithError(c, apperrors.NewDomainNotFoundError("session not found"))
		} else {
			abortWithError(c, err)
		}
		return nil, false
	}

	if entity.OwnerUserID != c.GetString("userId") {
		// Absence and denial look the same to the caller.
		abortWithError(c, apperrors.NewDomainNotFoundError("session not found"))
		return nil, false
	}
	return entity, true
}
