package store

import (
	"encoding/json"
	"errors"
	"iter"
	"time"

	"cognify/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStore is the document-database Store backend, laid out across four
// tables: users, entities, messages and history entries. Insertion order is
// the auto-increment sequence column, not the timestamp, so reordering can
// never happen even under clock skew.
type GormStore struct {
	db *gorm.DB
}

type userRow struct {
	ID          string `gorm:"primaryKey"`
	DisplayName string
	Email       string `gorm:"index"`
	Password    string
	Guest       bool
	CreatedAt   time.Time
	LastLogin   time.Time
}

func (userRow) TableName() string { return "users" }

type entityRow struct {
	ID              string `gorm:"primaryKey"`
	OwnerUserID     string `gorm:"index"`
	Title           string
	CreatedAt       time.Time
	SessionID       string `gorm:"index:idx_anchor"`
	AnchorMessageID string `gorm:"index:idx_anchor"`
	// AnchorMessage and PrevContext are JSON documents; they are written
	// once at creation and never updated.
	AnchorMessage string
	PrevContext   string
}

func (entityRow) TableName() string { return "conversation_entities" }

type messageRow struct {
	Seq       uint   `gorm:"primaryKey;autoIncrement"`
	ID        string `gorm:"uniqueIndex"`
	EntityID  string `gorm:"index"`
	Role      string
	Text      string
	Timestamp time.Time
}

func (messageRow) TableName() string { return "messages" }

type historyRow struct {
	Seq      uint   `gorm:"primaryKey;autoIncrement"`
	EntityID string `gorm:"index"`
	Role     string
	Content  string
}

func (historyRow) TableName() string { return "history_entries" }

// NewGormStore creates a Store backed by the given database handle and runs
// schema migration.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&userRow{}, &entityRow{}, &messageRow{}, &historyRow{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) CreateUser(user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	row := userRow{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Password:    user.Password,
		Guest:       user.Guest,
		CreatedAt:   user.CreatedAt,
		LastLogin:   user.LastLogin,
	}
	return s.db.Create(&row).Error
}

func (s *GormStore) GetUser(id string) (*models.User, error) {
	var row userRow
	if err := s.db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.hydrateUser(&row)
}

func (s *GormStore) GetUserByEmail(email string) (*models.User, error) {
	if email == "" {
		return nil, ErrUserNotFound
	}
	var row userRow
	if err := s.db.First(&row, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.hydrateUser(&row)
}

func (s *GormStore) hydrateUser(row *userRow) (*models.User, error) {
	var sessionIDs []string
	err := s.db.Model(&entityRow{}).
		Where("owner_user_id = ? AND session_id = ''", row.ID).
		Order("created_at ASC").
		Pluck("id", &sessionIDs).Error
	if err != nil {
		return nil, err
	}
	return &models.User{
		ID:          row.ID,
		DisplayName: row.DisplayName,
		Email:       row.Email,
		Password:    row.Password,
		Guest:       row.Guest,
		CreatedAt:   row.CreatedAt,
		LastLogin:   row.LastLogin,
		SessionIDs:  sessionIDs,
	}, nil
}

func (s *GormStore) UpdateLastLogin(id string) error {
	res := s.db.Model(&userRow{}).Where("id = ?", id).Update("last_login", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *GormStore) CreateSession(ownerUserID string) (*models.ConversationEntity, error) {
	var owner userRow
	if err := s.db.First(&owner, "id = ?", ownerUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	row := entityRow{
		ID:          uuid.New().String(),
		OwnerUserID: ownerUserID,
		CreatedAt:   time.Now(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return s.Get(row.ID)
}

func (s *GormStore) CreateQuizThread(spec QuizSpec) (*models.ConversationEntity, error) {
	var parent entityRow
	if err := s.db.First(&parent, "id = ?", spec.SessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntityNotFound
		}
		return nil, err
	}
	if existing, ok, err := s.FindQuizByAnchor(spec.SessionID, spec.AnchorMessageID); err != nil {
		return nil, err
	} else if ok {
		return s.Get(existing)
	}

	anchorJSON, err := json.Marshal(spec.AnchorMessage)
	if err != nil {
		return nil, err
	}
	prevJSON, err := json.Marshal(spec.PrevContext)
	if err != nil {
		return nil, err
	}
	row := entityRow{
		ID:              uuid.New().String(),
		OwnerUserID:     spec.OwnerUserID,
		CreatedAt:       time.Now(),
		SessionID:       spec.SessionID,
		AnchorMessageID: spec.AnchorMessageID,
		AnchorMessage:   string(anchorJSON),
		PrevContext:     string(prevJSON),
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		for _, seed := range spec.Seed {
			if err := tx.Create(&messageRow{
				ID:        uuid.New().String(),
				EntityID:  row.ID,
				Role:      seed.Role,
				Text:      seed.Text,
				Timestamp: seed.Timestamp,
			}).Error; err != nil {
				return err
			}
			if err := tx.Create(&historyRow{
				EntityID: row.ID,
				Role:     seed.Role,
				Content:  seed.Text,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(row.ID)
}

func (s *GormStore) Get(entityID string) (*models.ConversationEntity, error) {
	var row entityRow
	if err := s.db.First(&row, "id = ?", entityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntityNotFound
		}
		return nil, err
	}
	return s.hydrateEntity(&row)
}

func (s *GormStore) hydrateEntity(row *entityRow) (*models.ConversationEntity, error) {
	entity := &models.ConversationEntity{
		ID:              row.ID,
		OwnerUserID:     row.OwnerUserID,
		Title:           row.Title,
		CreatedAt:       row.CreatedAt,
		SessionID:       row.SessionID,
		AnchorMessageID: row.AnchorMessageID,
	}
	if row.AnchorMessage != "" {
		var anchor models.Message
		if err := json.Unmarshal([]byte(row.AnchorMessage), &anchor); err != nil {
			return nil, err
		}
		entity.AnchorMessage = &anchor
	}
	if row.PrevContext != "" {
		if err := json.Unmarshal([]byte(row.PrevContext), &entity.PrevContext); err != nil {
			return nil, err
		}
	}

	var msgRows []messageRow
	if err := s.db.Where("entity_id = ?", row.ID).Order("seq ASC").Find(&msgRows).Error; err != nil {
		return nil, err
	}
	for _, m := range msgRows {
		entity.Messages = append(entity.Messages, models.Message{
			ID:        m.ID,
			Text:      m.Text,
			Role:      m.Role,
			Timestamp: m.Timestamp,
		})
	}

	var histRows []historyRow
	if err := s.db.Where("entity_id = ?", row.ID).Order("seq ASC").Find(&histRows).Error; err != nil {
		return nil, err
	}
	for _, h := range histRows {
		entity.History = append(entity.History, models.HistoryEntry{Role: h.Role, Content: h.Content})
	}

	var childIDs []string
	err := s.db.Model(&entityRow{}).
		Where("session_id = ?", row.ID).
		Order("created_at ASC").
		Pluck("id", &childIDs).Error
	if err != nil {
		return nil, err
	}
	entity.ChildThreadIDs = childIDs
	return entity, nil
}

func (s *GormStore) ListSessions(ownerUserID string) ([]*models.ConversationEntity, error) {
	if _, err := s.GetUser(ownerUserID); err != nil {
		return nil, err
	}
	var rows []entityRow
	err := s.db.Where("owner_user_id = ? AND session_id = ''", ownerUserID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*models.ConversationEntity, 0, len(rows))
	for i := range rows {
		entity, err := s.hydrateEntity(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

func (s *GormStore) SetTitle(entityID, title string) error {
	res := s.db.Model(&entityRow{}).Where("id = ?", entityID).Update("title", title)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEntityNotFound
	}
	return nil
}

func (s *GormStore) FindQuizByAnchor(sessionID, anchorMessageID string) (string, bool, error) {
	var row entityRow
	err := s.db.First(&row, "session_id = ? AND anchor_message_id = ?", sessionID, anchorMessageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.ID, true, nil
}

func (s *GormStore) Append(entityID, role, text string) (models.Message, error) {
	if !models.ValidRole(role) {
		return models.Message{}, ErrInvalidRole
	}
	if err := s.requireEntity(entityID); err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		ID:        uuid.New().String(),
		Text:      text,
		Role:      role,
		Timestamp: time.Now(),
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&messageRow{
			ID:        msg.ID,
			EntityID:  entityID,
			Role:      msg.Role,
			Text:      msg.Text,
			Timestamp: msg.Timestamp,
		}).Error; err != nil {
			return err
		}
		return tx.Create(&historyRow{
			EntityID: entityID,
			Role:     msg.Role,
			Content:  msg.Text,
		}).Error
	})
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (s *GormStore) AppendHistory(entityID, role, content string) error {
	if err := s.requireEntity(entityID); err != nil {
		return err
	}
	return s.db.Create(&historyRow{EntityID: entityID, Role: role, Content: content}).Error
}

func (s *GormStore) FindMessage(entityID, messageID string) (models.Message, error) {
	if err := s.requireEntity(entityID); err != nil {
		return models.Message{}, err
	}
	var row messageRow
	err := s.db.First(&row, "entity_id = ? AND id = ?", entityID, messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return models.Message{ID: row.ID, Text: row.Text, Role: row.Role, Timestamp: row.Timestamp}, nil
}

func (s *GormStore) MessagesBefore(entityID, messageID, roleFilter string) (iter.Seq[models.Message], error) {
	if err := s.requireEntity(entityID); err != nil {
		return nil, err
	}
	var pivot messageRow
	err := s.db.First(&pivot, "entity_id = ? AND id = ?", entityID, messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}

	query := s.db.Where("entity_id = ? AND seq < ?", entityID, pivot.Seq)
	if roleFilter != "" {
		query = query.Where("role = ?", roleFilter)
	}
	var rows []messageRow
	if err := query.Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	return func(yield func(models.Message) bool) {
		for _, m := range rows {
			if !yield(models.Message{ID: m.ID, Text: m.Text, Role: m.Role, Timestamp: m.Timestamp}) {
				return
			}
		}
	}, nil
}

func (s *GormStore) requireEntity(entityID string) error {
	var count int64
	if err := s.db.Model(&entityRow{}).Where("id = ?", entityID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrEntityNotFound
	}
	return nil
}
