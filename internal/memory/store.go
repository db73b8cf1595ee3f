package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/wildercb/VR-RPGAI/internal/types"
)

// ScoredMemory is a vector-store hit with its cosine distance.
type ScoredMemory struct {
	types.Memory
	Distance float64
}

// VectorStore persists embedded facts and answers nearest-neighbor queries
// restricted to a visibility scope. A scope with a character id matches
// only that character's rows; a global scope matches only rows with no
// character id. Implementations: Postgres/pgvector and chromem-go.
type VectorStore interface {
	Insert(ctx context.Context, mem types.Memory) (*types.Memory, error)
	// Query returns up to k rows ordered by ascending cosine distance,
	// ties broken by most-recent creation first.
	Query(ctx context.Context, scope types.Scope, vector []float32, k int) ([]ScoredMemory, error)
	Update(ctx context.Context, id uuid.UUID, content string, vector []float32) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAll(ctx context.Context, scope types.Scope) error
	List(ctx context.Context, scope types.Scope) ([]types.Memory, error)
}
