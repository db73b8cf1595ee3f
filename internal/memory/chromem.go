package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/wildercb/VR-RPGAI/internal/types"
)

// metadata key carrying the scope predicate inside chromem documents.
// Global memories store an empty character id so the filter stays an
// exact-match lookup for both predicates.
const chromemCharacterKey = "character_id"

// ChromemStore is the embedded, in-process VectorStore built on
// chromem-go. One collection per user keeps scopes from ever crossing
// user boundaries; the character predicate is a metadata filter inside
// the collection. Suitable for single-binary deployments and tests.
type ChromemStore struct {
	db      *chromem.DB
	mu      sync.RWMutex
	records map[uuid.UUID]types.Memory
}

// NewChromemStore returns an empty in-memory store.
func NewChromemStore() *ChromemStore {
	return &ChromemStore{
		db:      chromem.NewDB(),
		records: make(map[uuid.UUID]types.Memory),
	}
}

func (s *ChromemStore) collection(userID string) (*chromem.Collection, error) {
	col, err := s.db.GetOrCreateCollection(fmt.Sprintf("user_%s", userID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return col, nil
}

func scopeWhere(scope types.Scope) map[string]string {
	characterID := ""
	if scope.CharacterID != nil {
		characterID = scope.CharacterID.String()
	}
	return map[string]string{chromemCharacterKey: characterID}
}

func (s *ChromemStore) Insert(ctx context.Context, mem types.Memory) (*types.Memory, error) {
	col, err := s.collection(mem.UserID)
	if err != nil {
		return nil, err
	}

	mem.ID = uuid.New()
	now := time.Now().UTC()
	mem.CreatedAt = now
	mem.UpdatedAt = now

	if err := col.AddDocument(ctx, chromem.Document{
		ID:        mem.ID.String(),
		Content:   mem.Content,
		Embedding: mem.Embedding,
		Metadata:  scopeWhere(mem.Scope()),
	}); err != nil {
		return nil, fmt.Errorf("failed to add document: %w", err)
	}

	s.mu.Lock()
	s.records[mem.ID] = mem
	s.mu.Unlock()
	return &mem, nil
}

func (s *ChromemStore) Query(ctx context.Context, scope types.Scope, vector []float32, k int) ([]ScoredMemory, error) {
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}

	// chromem rejects nResults above the matching document count, so
	// clamp to what the scope actually holds.
	matching := s.countScope(scope)
	if matching == 0 {
		return nil, nil
	}
	if k > matching {
		k = matching
	}

	col, err := s.collection(scope.UserID)
	if err != nil {
		return nil, err
	}
	hits, err := col.QueryEmbedding(ctx, vector, k, scopeWhere(scope), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	s.mu.RLock()
	results := make([]ScoredMemory, 0, len(hits))
	for _, hit := range hits {
		id, err := uuid.Parse(hit.ID)
		if err != nil {
			continue
		}
		mem, ok := s.records[id]
		if !ok {
			continue
		}
		results = append(results, ScoredMemory{
			Memory:   mem,
			Distance: 1 - float64(hit.Similarity),
		})
	}
	s.mu.RUnlock()

	// Ascending distance, most recent first on ties.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

func (s *ChromemStore) Update(ctx context.Context, id uuid.UUID, content string, vector []float32) error {
	s.mu.Lock()
	mem, ok := s.records[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("memory %s not found", id)
	}

	col, err := s.collection(mem.UserID)
	if err != nil {
		return err
	}

	// AddDocument with an existing id replaces the stored document, so
	// repeated updates leave exactly one record.
	mem.Content = content
	mem.Embedding = vector
	mem.UpdatedAt = time.Now().UTC()
	if err := col.AddDocument(ctx, chromem.Document{
		ID:        mem.ID.String(),
		Content:   mem.Content,
		Embedding: mem.Embedding,
		Metadata:  scopeWhere(mem.Scope()),
	}); err != nil {
		return fmt.Errorf("failed to replace document: %w", err)
	}

	s.mu.Lock()
	s.records[id] = mem
	s.mu.Unlock()
	return nil
}

func (s *ChromemStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	mem, ok := s.records[id]
	if ok {
		delete(s.records, id)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	col, err := s.collection(mem.UserID)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id.String()); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (s *ChromemStore) DeleteAll(ctx context.Context, scope types.Scope) error {
	col, err := s.collection(scope.UserID)
	if err != nil {
		return err
	}
	if s.countScope(scope) == 0 {
		return nil
	}
	if err := col.Delete(ctx, scopeWhere(scope), nil); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}

	s.mu.Lock()
	for id, mem := range s.records {
		if scopeMatches(scope, mem) {
			delete(s.records, id)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *ChromemStore) List(ctx context.Context, scope types.Scope) ([]types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var memories []types.Memory
	for _, mem := range s.records {
		if scopeMatches(scope, mem) {
			memories = append(memories, mem)
		}
	}
	sort.Slice(memories, func(i, j int) bool {
		return memories[i].CreatedAt.Before(memories[j].CreatedAt)
	})
	return memories, nil
}

func (s *ChromemStore) countScope(scope types.Scope) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, mem := range s.records {
		if scopeMatches(scope, mem) {
			count++
		}
	}
	return count
}

func scopeMatches(scope types.Scope, mem types.Memory) bool {
	if mem.UserID != scope.UserID {
		return false
	}
	if scope.IsGlobal() {
		return mem.CharacterID == nil
	}
	return mem.CharacterID != nil && *mem.CharacterID == *scope.CharacterID
}
