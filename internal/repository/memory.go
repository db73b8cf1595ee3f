package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/wildercb/VR-RPGAI/internal/memory"
	"github.com/wildercb/VR-RPGAI/internal/types"
)

// memoryModel maps to the memories table. A NULL character_id marks a
// user-global memory.
type memoryModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID      string     `gorm:"index;not null"`
	CharacterID *uuid.UUID `gorm:"type:uuid;index"`
	Content     string     `gorm:"type:text;not null"`
	// Metadata carries provenance such as the originating conversation.
	Metadata json.RawMessage `gorm:"type:jsonb"`
	// Embedding stores the vector representation for similarity search.
	Embedding *pgvector.Vector `gorm:"type:vector(384)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (memoryModel) TableName() string {
	return "memories"
}

// memoryRow is the scan target for similarity queries.
type memoryRow struct {
	memoryModel
	Distance float64
}

// MemoryRepo is the pgvector-backed memory.VectorStore.
type MemoryRepo struct {
	db *gorm.DB
}

var _ memory.VectorStore = (*MemoryRepo)(nil)

// NewMemoryRepo returns a MemoryRepo.
func NewMemoryRepo(db *gorm.DB) *MemoryRepo {
	return &MemoryRepo{db: db}
}

func (r *MemoryRepo) Insert(ctx context.Context, mem types.Memory) (*types.Memory, error) {
	metadata, err := marshalJSON(mem.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode memory metadata: %w", err)
	}

	record := memoryModel{
		ID:          uuid.New(),
		UserID:      mem.UserID,
		CharacterID: mem.CharacterID,
		Content:     mem.Content,
		Metadata:    metadata,
		Embedding:   toVector(mem.Embedding),
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to insert memory: %w", err)
	}

	inserted := memoryFromModel(record)
	return &inserted, nil
}

func (r *MemoryRepo) Query(ctx context.Context, scope types.Scope, vector []float32, k int) ([]memory.ScoredMemory, error) {
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}

	scopeCond := "character_id = $3"
	args := []any{pgvector.NewVector(vector), scope.UserID}
	limitArg := "$3"
	if scope.IsGlobal() {
		scopeCond = "character_id IS NULL"
	} else {
		args = append(args, *scope.CharacterID)
		limitArg = "$4"
	}
	args = append(args, k)

	query := fmt.Sprintf(`
		SELECT id, user_id, character_id, content, metadata, created_at, updated_at,
		       (embedding <=> $1) AS distance
		FROM memories
		WHERE user_id = $2 AND %s AND embedding IS NOT NULL
		ORDER BY distance ASC, created_at DESC
		LIMIT %s`, scopeCond, limitArg)

	var rows []memoryRow
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to search similar memories: %w", err)
	}

	results := make([]memory.ScoredMemory, 0, len(rows))
	for _, row := range rows {
		results = append(results, memory.ScoredMemory{
			Memory:   memoryFromModel(row.memoryModel),
			Distance: row.Distance,
		})
	}
	return results, nil
}

func (r *MemoryRepo) Update(ctx context.Context, id uuid.UUID, content string, vector []float32) error {
	result := r.db.WithContext(ctx).Model(&memoryModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"content":    content,
			"embedding":  toVector(vector),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update memory: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&memoryModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	return nil
}

func (r *MemoryRepo) DeleteAll(ctx context.Context, scope types.Scope) error {
	query := r.db.WithContext(ctx).Where("user_id = ?", scope.UserID)
	if scope.IsGlobal() {
		query = query.Where("character_id IS NULL")
	} else {
		query = query.Where("character_id = ?", *scope.CharacterID)
	}
	if err := query.Delete(&memoryModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete memories: %w", err)
	}
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, scope types.Scope) ([]types.Memory, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", scope.UserID)
	if scope.IsGlobal() {
		query = query.Where("character_id IS NULL")
	} else {
		query = query.Where("character_id = ?", *scope.CharacterID)
	}

	var records []memoryModel
	if err := query.Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}

	results := make([]types.Memory, 0, len(records))
	for _, record := range records {
		results = append(results, memoryFromModel(record))
	}
	return results, nil
}

func memoryFromModel(record memoryModel) types.Memory {
	var metadata map[string]string
	_ = unmarshalJSON(record.Metadata, &metadata)

	mem := types.Memory{
		ID:          record.ID,
		UserID:      record.UserID,
		CharacterID: record.CharacterID,
		Content:     record.Content,
		Metadata:    metadata,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
	if record.Embedding != nil {
		mem.Embedding = record.Embedding.Slice()
	}
	return mem
}

func toVector(embedding []float32) *pgvector.Vector {
	if len(embedding) == 0 {
		return nil
	}
	v := pgvector.NewVector(embedding)
	return &v
}

// marshalJSON encodes a value into JSONB, returning nil for empty values.
func marshalJSON(value any) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

// unmarshalJSON decodes JSONB into the provided target.
func unmarshalJSON(data json.RawMessage, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}
