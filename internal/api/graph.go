package api

import (
	"errors"
	"net/http"

	"cognify/backend/internal/graph"
	"cognify/backend/internal/models"
	"cognify/backend/internal/store"
	apperrors "cognify/backend/pkg/errors"
	"cognify/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// GraphHandler exposes the per-user topic knowledge graph
type GraphHandler struct {
	store  store.Store
	graphs *graph.Service
	logger *logger.Logger
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(st store.Store, graphs *graph.Service, logger *logger.Logger) *GraphHandler {
	return &GraphHandler{store: st, graphs: graphs, logger: logger}
}

// Get derives the knowledge graph over all of the caller's sessions
func (h *GraphHandler) Get(c *gin.Context) {
	userID := c.GetString("userId")

	sessions, err := h.store.ListSessions(userID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	histories := make([][]models.HistoryEntry, 0, len(sessions))
	for _, s := range sessions {
		histories = append(histories, s.History)
	}

	g, err := h.graphs.ForUser(c.Request.Context(), userID, histories)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, g)
}

// Summary produces a short summary of one session, for graph node tooltips
func (h *GraphHandler) Summary(c *gin.Context) {
	userID := c.GetString("userId")
	entityID := c.Param("id")

	entity, err := h.store.Get(entityID)
	if err != nil {
		if errors.Is(err, store.ErrEntityNotFound) {
			abortWithError(c, apperrors.NewDomainNotFoundError("session not found"))
		} else {
			abortWithError(c, err)
		}
		return
	}
	if entity.OwnerUserID != userID {
		abortWithError(c, apperrors.NewDomainNotFoundError("session not found"))
		return
	}

	summary, err := h.graphs.Summarize(c.Request.Context(), entity.History)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}
