package store

import (
	"iter"
	"sync"
	"time"

	"cognify/backend/internal/models"

	"github.com/google/uuid"
)

// MemoryStore is the in-memory Store backend. Entities live in an arena map
// owned by the store; callers only ever see snapshots. A single RWMutex is
// enough because turn serialization upstream already excludes concurrent
// writes to the same entity.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	entities map[string]*models.ConversationEntity
	// byAnchor maps sessionID+"\x00"+anchorMessageID to the quiz thread id.
	byAnchor map[string]string
	// lastTS keeps per-entity append timestamps monotonic even when the
	// clock does not move between appends.
	lastTS map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*models.User),
		entities: make(map[string]*models.ConversationEntity),
		byAnchor: make(map[string]string),
		lastTS:   make(map[string]time.Time),
	}
}

func anchorKey(sessionID, anchorMessageID string) string {
	return sessionID + "\x00" + anchorMessageID
}

func (s *MemoryStore) CreateUser(user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	cp := *user
	s.users[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	cp.SessionIDs = append([]string(nil), u.SessionIDs...)
	return &cp, nil
}

func (s *MemoryStore) GetUserByEmail(email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email != "" && u.Email == email {
			cp := *u
			cp.SessionIDs = append([]string(nil), u.SessionIDs...)
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryStore) UpdateLastLogin(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.LastLogin = time.Now()
	return nil
}

func (s *MemoryStore) CreateSession(ownerUserID string) (*models.ConversationEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.users[ownerUserID]
	if !ok {
		return nil, ErrUserNotFound
	}

	entity := &models.ConversationEntity{
		ID:          uuid.New().String(),
		OwnerUserID: ownerUserID,
		CreatedAt:   time.Now(),
	}
	s.entities[entity.ID] = entity
	owner.SessionIDs = append(owner.SessionIDs, entity.ID)
	return snapshot(entity), nil
}

func (s *MemoryStore) CreateQuizThread(spec QuizSpec) (*models.ConversationEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.entities[spec.SessionID]
	if !ok {
		return nil, ErrEntityNotFound
	}
	if existing, ok := s.byAnchor[anchorKey(spec.SessionID, spec.AnchorMessageID)]; ok {
		return snapshot(s.entities[existing]), nil
	}

	anchor := spec.AnchorMessage
	entity := &models.ConversationEntity{
		ID:              uuid.New().String(),
		OwnerUserID:     spec.OwnerUserID,
		CreatedAt:       time.Now(),
		SessionID:       spec.SessionID,
		AnchorMessageID: spec.AnchorMessageID,
		AnchorMessage:   &anchor,
		PrevContext:     append([]models.HistoryEntry(nil), spec.PrevContext...),
	}
	for _, seed := range spec.Seed {
		msg := models.Message{
			ID:        uuid.New().String(),
			Text:      seed.Text,
			Role:      seed.Role,
			Timestamp: seed.Timestamp,
		}
		entity.Messages = append(entity.Messages, msg)
		entity.History = append(entity.History, msg.History())
	}
	s.entities[entity.ID] = entity
	parent.ChildThreadIDs = append(parent.ChildThreadIDs, entity.ID)
	s.byAnchor[anchorKey(spec.SessionID, spec.AnchorMessageID)] = entity.ID
	return snapshot(entity), nil
}

func (s *MemoryStore) Get(entityID string) (*models.ConversationEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[entityID]
	if !ok {
		return nil, ErrEntityNotFound
	}
	return snapshot(entity), nil
}

func (s *MemoryStore) ListSessions(ownerUserID string) ([]*models.ConversationEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.users[ownerUserID]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := make([]*models.ConversationEntity, 0, len(owner.SessionIDs))
	for _, id := range owner.SessionIDs {
		if entity, ok := s.entities[id]; ok {
			out = append(out, snapshot(entity))
		}
	}
	return out, nil
}

func (s *MemoryStore) SetTitle(entityID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[entityID]
	if !ok {
		return ErrEntityNotFound
	}
	entity.Title = title
	return nil
}

func (s *MemoryStore) FindQuizByAnchor(sessionID, anchorMessageID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAnchor[anchorKey(sessionID, anchorMessageID)]
	return id, ok, nil
}

func (s *MemoryStore) Append(entityID, role, text string) (models.Message, error) {
	if !models.ValidRole(role) {
		return models.Message{}, ErrInvalidRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[entityID]
	if !ok {
		return models.Message{}, ErrEntityNotFound
	}

	msg := models.Message{
		ID:        uuid.New().String(),
		Text:      text,
		Role:      role,
		Timestamp: s.nextTimestamp(entityID),
	}
	entity.Messages = append(entity.Messages, msg)
	entity.History = append(entity.History, msg.History())
	return msg, nil
}

func (s *MemoryStore) AppendHistory(entityID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[entityID]
	if !ok {
		return ErrEntityNotFound
	}
	entity.History = append(entity.History, models.HistoryEntry{Role: role, Content: content})
	return nil
}

func (s *MemoryStore) FindMessage(entityID, messageID string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[entityID]
	if !ok {
		return models.Message{}, ErrEntityNotFound
	}
	// Recent messages are the common lookup target, so scan back to front.
	for i := len(entity.Messages) - 1; i >= 0; i-- {
		if entity.Messages[i].ID == messageID {
			return entity.Messages[i], nil
		}
	}
	return models.Message{}, ErrMessageNotFound
}

func (s *MemoryStore) MessagesBefore(entityID, messageID, roleFilter string) (iter.Seq[models.Message], error) {
	s.mu.RLock()
	entity, ok := s.entities[entityID]
	if !ok {
		s.mu.RUnlock()
		return nil, ErrEntityNotFound
	}
	cutoff := -1
	for i := len(entity.Messages) - 1; i >= 0; i-- {
		if entity.Messages[i].ID == messageID {
			cutoff = i
			break
		}
	}
	if cutoff < 0 {
		s.mu.RUnlock()
		return nil, ErrMessageNotFound
	}
	// Snapshot the prefix so the sequence stays stable and restartable even
	// if the entity keeps growing.
	prefix := append([]models.Message(nil), entity.Messages[:cutoff]...)
	s.mu.RUnlock()

	return func(yield func(models.Message) bool) {
		for _, m := range prefix {
			if roleFilter != "" && m.Role != roleFilter {
				continue
			}
			if !yield(m) {
				return
			}
		}
	}, nil
}

// nextTimestamp returns a wall-clock timestamp that never moves backward
// within an entity. Callers must hold the write lock.
func (s *MemoryStore) nextTimestamp(entityID string) time.Time {
	now := time.Now()
	if last, ok := s.lastTS[entityID]; ok && !now.After(last) {
		now = last.Add(time.Nanosecond)
	}
	s.lastTS[entityID] = now
	return now
}

// snapshot deep-copies an entity so callers cannot mutate store-owned state.
func snapshot(e *models.ConversationEntity) *models.ConversationEntity {
	cp := *e
	cp.Messages = append([]models.Message(nil), e.Messages...)
	cp.History = append([]models.HistoryEntry(nil), e.History...)
	cp.ChildThreadIDs = append([]string(nil), e.ChildThreadIDs...)
	cp.PrevContext = append([]models.HistoryEntry(nil), e.PrevContext...)
	if e.AnchorMessage != nil {
		anchor := *e.AnchorMessage
		cp.AnchorMessage = &anchor
	}
	return &cp
}
