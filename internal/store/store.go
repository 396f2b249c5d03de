package store

import (
	"errors"
	"iter"

	"cognify/backend/internal/models"
)

// Sentinel errors returned by every Store backend. Callers translate these
// into transport-level errors; the store itself has no notion of HTTP.
var (
	ErrEntityNotFound  = errors.New("conversation entity not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidRole     = errors.New("invalid message role")
)

// QuizSpec carries everything the store needs to create a quiz thread. The
// context-assembly logic that produces it lives in the quiz package; the
// store only persists the result and maintains the parent/child and
// anchor-dedup bookkeeping.
type QuizSpec struct {
	SessionID       string
	OwnerUserID     string
	AnchorMessageID string
	AnchorMessage   models.Message
	PrevContext     []models.HistoryEntry
	// Seed holds the turns copied from the parent session (normally the
	// triggering user message and the anchor). Seeded messages keep their
	// original text, role and timestamp but receive fresh ids; each gets
	// its paired history entry.
	Seed []models.Message
}

// Store is the transcript store: the single shared mutable resource of the
// system. All mutation is append-only per entity. Implementations must
// preserve insertion order, generate stable ids, and keep timestamps
// non-decreasing within an entity.
type Store interface {
	// Users.
	CreateUser(user *models.User) error
	GetUser(id string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	UpdateLastLogin(id string) error

	// Conversation entities.
	CreateSession(ownerUserID string) (*models.ConversationEntity, error)
	// CreateQuizThread persists a quiz thread with its seed turns in one
	// step. Creation is idempotent on (SessionID, AnchorMessageID): if a
	// thread for that pair exists it is returned unchanged.
	CreateQuizThread(spec QuizSpec) (*models.ConversationEntity, error)
	Get(entityID string) (*models.ConversationEntity, error)
	ListSessions(ownerUserID string) ([]*models.ConversationEntity, error)
	SetTitle(entityID, title string) error
	// FindQuizByAnchor returns the id of the quiz thread previously created
	// for (sessionID, anchorMessageID), if any. Quiz creation is keyed by
	// this pair, never freshly minted per call.
	FindQuizByAnchor(sessionID, anchorMessageID string) (string, bool, error)

	// Transcript operations.
	Append(entityID, role, text string) (models.Message, error)
	AppendHistory(entityID, role, content string) error
	FindMessage(entityID, messageID string) (models.Message, error)
	// MessagesBefore yields all messages strictly preceding messageID in
	// insertion order, optionally filtered by role (empty string matches
	// all). The sequence is lazy, finite and restartable.
	MessagesBefore(entityID, messageID, roleFilter string) (iter.Seq[models.Message], error)
}
