package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"cognify/backend/internal/chat"
	"cognify/backend/internal/quiz"
	"cognify/backend/internal/store"
	"cognify/backend/pkg/errors"
	"cognify/backend/pkg/jwt"
	"cognify/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024 // 64KB
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
}

// Inbound is a client request over the socket. Type selects the operation:
// "chat" runs a tutoring turn, "quiz_question" requests a question on a quiz
// thread, "quiz_answer" submits an answer for evaluation.
type Inbound struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	EntityID  string `json:"entity_id"`
	Text      string `json:"text,omitempty"`
	Highlight string `json:"highlight,omitempty"`
}

// Outbound is a server frame. Streaming turns produce a run of chat_chunk
// frames closed by exactly one chat_done or error frame.
type Outbound struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	EntityID  string `json:"entity_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Title     string `json:"title,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Client is one connected websocket peer
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub

	// ctx is cancelled when the peer disconnects so in-flight turns stop.
	ctx    context.Context
	cancel context.CancelFunc
}

// Hub tracks connected clients and routes turn requests into the chat and
// quiz cores.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	store store.Store
	orch  *chat.Orchestrator
	quiz  *quiz.Manager
	log   *logger.Logger
	mu    sync.Mutex
}

// NewHub creates a hub over the chat orchestrator and quiz manager
func NewHub(st store.Store, orch *chat.Orchestrator, quizManager *quiz.Manager, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		store:      st,
		orch:       orch,
		quiz:       quizManager,
		log:        log,
	}
}

// Run processes client registration. It blocks and is meant to run in its
// own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Info("WebSocket client registered", "client_id", client.ID, "user_id", client.UserID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.log.Info("WebSocket client unregistered", "client_id", client.ID)
			}
			h.mu.Unlock()
		}
	}
}

// ServeWs upgrades the request and starts the client pumps. The token comes
// from the query string because browsers cannot set headers on websocket
// dials.
func ServeWs(hub *Hub, jwtService *jwt.Service, c *gin.Context) {
	token := c.Query("token")
	claims, err := jwtService.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Error("WebSocket upgrade failed", "error", err.Error())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		ID:     uuid.New().String(),
		UserID: claims.UserID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		Hub:    hub,
		ctx:    ctx,
		cancel: cancel,
	}
	hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Hub.log.Warn("WebSocket read error", "client_id", c.ID, "error", err.Error())
			}
			return
		}

		var req Inbound
		if err := json.Unmarshal(raw, &req); err != nil {
			c.sendError(req.RequestID, "", errors.NewInvalidInputError("malformed request frame"))
			continue
		}

		// Run the turn off the read loop so a disconnect is observed and
		// cancels it through c.ctx. Each request's goroutine writes its
		// frames sequentially, and concurrent turns on the same entity are
		// rejected by the orchestrator.
		go c.handleRequest(req)
	}
}

func (c *Client) handleRequest(req Inbound) {
	ctx := c.ctx

	if !c.ownsEntity(req.EntityID) {
		c.sendError(req.RequestID, req.EntityID, errors.NewDomainNotFoundError("conversation not found"))
		return
	}

	var (
		events <-chan chat.Event
		err    error
	)
	switch req.Type {
	case "chat", "chat_message":
		events, err = c.Hub.orch.ChatTurn(ctx, req.EntityID, req.Text)
	case "quiz_question":
		events, err = c.Hub.quiz.AskQuestion(ctx, req.EntityID, req.Highlight)
	case "quiz_answer":
		events, err = c.Hub.quiz.SubmitAnswer(ctx, req.EntityID, req.Text)
	default:
		err = errors.NewInvalidInputError("unknown request type: " + req.Type)
	}
	if err != nil {
		c.sendError(req.RequestID, req.EntityID, err)
		return
	}

	for ev := range events {
		switch ev.Type {
		case chat.EventFragment:
			c.send(Outbound{
				Type:      "chat_chunk",
				RequestID: req.RequestID,
				EntityID:  req.EntityID,
				Text:      ev.Fragment,
			})
		case chat.EventDone:
			out := Outbound{
				Type:      "chat_done",
				RequestID: req.RequestID,
				EntityID:  req.EntityID,
				Title:     ev.Title,
			}
			if ev.AssistantMessage != nil {
				out.MessageID = ev.AssistantMessage.ID
			}
			c.send(out)
		case chat.EventError:
			c.sendError(req.RequestID, req.EntityID, ev.Err)
		}
	}
}

// ownsEntity checks that the target conversation belongs to this socket's
// user before any turn starts.
func (c *Client) ownsEntity(entityID string) bool {
	if entityID == "" {
		return false
	}
	entity, err := c.Hub.store.Get(entityID)
	if err != nil {
		return false
	}
	return entity.OwnerUserID == c.UserID
}

func (c *Client) send(out Outbound) {
	raw, err := json.Marshal(out)
	if err != nil {
		return
	}
	select {
	case c.Send <- raw:
	default:
		// Slow consumer; drop the frame rather than block the turn.
		c.Hub.log.Warn("WebSocket send buffer full, dropping frame", "client_id", c.ID)
	}
}

func (c *Client) sendError(requestID, entityID string, err error) {
	appErr := errors.FromError(err)
	c.send(Outbound{
		Type:      "error",
		RequestID: requestID,
		EntityID:  entityID,
		Code:      appErr.Code,
		Message:   appErr.Message,
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
