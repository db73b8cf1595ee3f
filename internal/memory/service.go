package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wildercb/VR-RPGAI/internal/types"
)

// Service is the domain-level memory store: it owns the character-scoped /
// global partition model and semantic retrieval over a VectorStore leaf.
type Service struct {
	embedder Embedder
	store    VectorStore
}

// NewService returns a memory Service.
func NewService(embedder Embedder, store VectorStore) *Service {
	return &Service{
		embedder: embedder,
		store:    store,
	}
}

// Retrieve embeds the query and returns up to limit memories from the
// scope, most similar first. A scope with nothing stored yields an empty
// list, not an error. Embedder or store outages surface as ErrUnavailable.
func (s *Service) Retrieve(ctx context.Context, scope types.Scope, query string, limit int) ([]types.RetrievedMemory, error) {
	if query == "" || limit <= 0 {
		return nil, nil
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", wrapUnavailable(err))
	}

	hits, err := s.store.Query(ctx, scope, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", wrapUnavailable(err))
	}

	results := make([]types.RetrievedMemory, 0, len(hits))
	for _, hit := range hits {
		results = append(results, types.RetrievedMemory{
			ID:         hit.ID,
			Content:    hit.Content,
			Similarity: 1 - hit.Distance,
			CreatedAt:  hit.CreatedAt,
		})
	}
	return results, nil
}

// Write embeds a fact and inserts it into the scope. No deduplication is
// performed; near-identical facts may accumulate.
func (s *Service) Write(ctx context.Context, scope types.Scope, fact string, metadata map[string]string) (*types.Memory, error) {
	if fact == "" {
		return nil, fmt.Errorf("fact text cannot be empty")
	}

	vec, err := s.embedder.EmbedDocument(ctx, fact)
	if err != nil {
		return nil, fmt.Errorf("failed to embed fact: %w", wrapUnavailable(err))
	}

	mem, err := s.store.Insert(ctx, types.Memory{
		UserID:      scope.UserID,
		CharacterID: scope.CharacterID,
		Content:     fact,
		Metadata:    metadata,
		Embedding:   vec,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert memory: %w", wrapUnavailable(err))
	}
	return mem, nil
}

// Update replaces a memory's text and re-embeds it in place.
func (s *Service) Update(ctx context.Context, id uuid.UUID, newText string) error {
	if newText == "" {
		return fmt.Errorf("memory text cannot be empty")
	}

	vec, err := s.embedder.EmbedDocument(ctx, newText)
	if err != nil {
		return fmt.Errorf("failed to embed memory: %w", wrapUnavailable(err))
	}
	if err := s.store.Update(ctx, id, newText, vec); err != nil {
		return fmt.Errorf("failed to update memory: %w", wrapUnavailable(err))
	}
	return nil
}

// Delete removes a memory immediately.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete memory: %w", wrapUnavailable(err))
	}
	return nil
}

// DeleteAll removes every memory in a scope.
func (s *Service) DeleteAll(ctx context.Context, scope types.Scope) error {
	if err := s.store.DeleteAll(ctx, scope); err != nil {
		return fmt.Errorf("failed to delete memories: %w", wrapUnavailable(err))
	}
	return nil
}

// ListAll returns the full fact list for a scope, bypassing similarity
// ranking. Used by the "view my memories" surface.
func (s *Service) ListAll(ctx context.Context, scope types.Scope) ([]types.Memory, error) {
	memories, err := s.store.List(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", wrapUnavailable(err))
	}
	return memories, nil
}

// wrapUnavailable folds leaf errors under ErrUnavailable unless they are
// already classified.
func wrapUnavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
