package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wildercb/VR-RPGAI/internal/types"
)

// conversationModel maps to the conversations table.
type conversationModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	CharacterID   uuid.UUID `gorm:"type:uuid;index;not null"`
	UserID        string    `gorm:"index;not null"`
	CreatedAt     time.Time
	LastMessageAt time.Time
}

func (conversationModel) TableName() string {
	return "conversations"
}

// messageModel maps to the messages table. Rows are append-only.
type messageModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID `gorm:"type:uuid;index;not null"`
	Role           string    `gorm:"not null"`
	Content        string    `gorm:"type:text;not null"`
	AudioFile      string
	CreatedAt      time.Time
}

func (messageModel) TableName() string {
	return "messages"
}

// ConversationRepo accesses conversations and their messages.
type ConversationRepo struct {
	db *gorm.DB
}

// NewConversationRepo returns a ConversationRepo.
func NewConversationRepo(db *gorm.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// GetOrCreate returns the most recent conversation between a character
// and a user, creating one lazily on first contact.
func (r *ConversationRepo) GetOrCreate(ctx context.Context, characterID uuid.UUID, userID string) (*types.Conversation, error) {
	var record conversationModel
	err := r.db.WithContext(ctx).
		Where("character_id = ? AND user_id = ?", characterID, userID).
		Order("last_message_at DESC").
		First(&record).Error
	if err == nil {
		conversation := conversationFromModel(record)
		return &conversation, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}

	record = conversationModel{
		ID:            uuid.New(),
		CharacterID:   characterID,
		UserID:        userID,
		LastMessageAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	conversation := conversationFromModel(record)
	return &conversation, nil
}

// AppendMessage inserts one message and touches the conversation's
// last_message_at.
func (r *ConversationRepo) AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string) (*types.Message, error) {
	record := messageModel{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		if err := tx.Model(&conversationModel{}).
			Where("id = ?", conversationID).
			Update("last_message_at", record.CreatedAt).Error; err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	message := messageFromModel(record)
	return &message, nil
}

// ListRecent returns the last limit messages of a conversation ordered
// oldest to newest.
func (r *ConversationRepo) ListRecent(ctx context.Context, conversationID uuid.UUID, limit int) ([]types.Message, error) {
	var records []messageModel
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	results := make([]types.Message, 0, len(records))
	for _, record := range records {
		results = append(results, messageFromModel(record))
	}

	// Oldest -> newest
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

// History returns up to limit messages of a conversation for a user,
// oldest to newest, enforcing conversation ownership.
func (r *ConversationRepo) History(ctx context.Context, conversationID uuid.UUID, userID string, limit int) ([]types.Message, error) {
	var owner conversationModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	return r.ListRecent(ctx, conversationID, limit)
}

func conversationFromModel(record conversationModel) types.Conversation {
	return types.Conversation{
		ID:            record.ID,
		CharacterID:   record.CharacterID,
		UserID:        record.UserID,
		CreatedAt:     record.CreatedAt,
		LastMessageAt: record.LastMessageAt,
	}
}

func messageFromModel(record messageModel) types.Message {
	return types.Message{
		ID:             record.ID,
		ConversationID: record.ConversationID,
		Role:           record.Role,
		Content:        record.Content,
		AudioFile:      record.AudioFile,
		CreatedAt:      record.CreatedAt,
	}
}
