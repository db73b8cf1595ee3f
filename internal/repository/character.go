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

// characterModel maps to the characters table.
type characterModel struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID             string    `gorm:"index;not null"`
	Name               string    `gorm:"not null"`
	CreationPrompt     string    `gorm:"type:text;not null"`
	SystemPrompt       string    `gorm:"type:text;not null"`
	PersonalitySummary string    `gorm:"type:text"`
	LLMProvider        string
	LLMModel           string
	Temperature        float64
	Documents          []documentModel `gorm:"foreignKey:CharacterID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time
}

func (characterModel) TableName() string {
	return "characters"
}

// documentModel maps to the character_documents table.
type documentModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	CharacterID uuid.UUID `gorm:"type:uuid;index;not null"`
	Filename    string    `gorm:"not null"`
	Content     string    `gorm:"type:text;not null"`
	Description string
	CreatedAt   time.Time
}

func (documentModel) TableName() string {
	return "character_documents"
}

// CharacterRepo accesses character data.
type CharacterRepo struct {
	db *gorm.DB
}

// NewCharacterRepo returns a CharacterRepo.
func NewCharacterRepo(db *gorm.DB) *CharacterRepo {
	return &CharacterRepo{db: db}
}

// Create persists a new character, assigning its id.
func (r *CharacterRepo) Create(ctx context.Context, character *types.Character) error {
	record := characterModel{
		ID:                 uuid.New(),
		UserID:             character.UserID,
		Name:               character.Name,
		CreationPrompt:     character.CreationPrompt,
		SystemPrompt:       character.SystemPrompt,
		PersonalitySummary: character.PersonalitySummary,
		LLMProvider:        character.LLMProvider,
		LLMModel:           character.LLMModel,
		Temperature:        character.Temperature,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert character: %w", err)
	}
	character.ID = record.ID
	character.CreatedAt = record.CreatedAt
	return nil
}

// GetByID fetches a character with its documents, enforcing ownership.
func (r *CharacterRepo) GetByID(ctx context.Context, id uuid.UUID, userID string) (*types.Character, error) {
	var record characterModel
	err := r.db.WithContext(ctx).
		Preload("Documents").
		Where("id = ? AND user_id = ?", id, userID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("character %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get character: %w", err)
	}
	character := characterFromModel(record)
	return &character, nil
}

// List returns all characters owned by a user, without documents.
func (r *CharacterRepo) List(ctx context.Context, userID string) ([]types.Character, error) {
	var records []characterModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}

	characters := make([]types.Character, 0, len(records))
	for _, record := range records {
		characters = append(characters, characterFromModel(record))
	}
	return characters, nil
}

// Delete removes a character and, via cascade, its documents and
// conversations.
func (r *CharacterRepo) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&characterModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete character: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("character %s: %w", id, ErrNotFound)
	}
	return nil
}

// AddDocument attaches reference knowledge to a character.
func (r *CharacterRepo) AddDocument(ctx context.Context, doc *types.Document) error {
	record := documentModel{
		ID:          uuid.New(),
		CharacterID: doc.CharacterID,
		Filename:    doc.Filename,
		Content:     doc.Content,
		Description: doc.Description,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	doc.ID = record.ID
	doc.CreatedAt = record.CreatedAt
	return nil
}

func characterFromModel(record characterModel) types.Character {
	documents := make([]types.Document, 0, len(record.Documents))
	for _, doc := range record.Documents {
		documents = append(documents, types.Document{
			ID:          doc.ID,
			CharacterID: doc.CharacterID,
			Filename:    doc.Filename,
			Content:     doc.Content,
			Description: doc.Description,
			CreatedAt:   doc.CreatedAt,
		})
	}
	return types.Character{
		ID:                 record.ID,
		UserID:             record.UserID,
		Name:               record.Name,
		CreationPrompt:     record.CreationPrompt,
		SystemPrompt:       record.SystemPrompt,
		PersonalitySummary: record.PersonalitySummary,
		LLMProvider:        record.LLMProvider,
		LLMModel:           record.LLMModel,
		Temperature:        record.Temperature,
		Documents:          documents,
		CreatedAt:          record.CreatedAt,
	}
}
