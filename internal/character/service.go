// Package character turns a one-line concept into a full persisted NPC
// profile via LLM generation.
package character

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wildercb/VR-RPGAI/internal/llm"
	"github.com/wildercb/VR-RPGAI/internal/types"
)

const generationInstruction = `You are a character profile generator for an AI-driven VR RPG system.

Given a user's character concept, generate a comprehensive character profile in the following format:

**Character Name:** [Generate an appropriate name]

**Personality Summary:** [2-3 sentences describing the character's core personality, role, and purpose]

**System Prompt:**
[Generate a detailed system prompt that this character will use when interacting with users. This should include:
- Who they are and their background
- Their personality traits and how they speak
- Their knowledge domain and expertise
- How they should respond to users
- Their goals in interactions

The system prompt should be written in second person ("You are...") and be comprehensive enough that an LLM can roleplay this character convincingly.]

---

User's Character Concept: %s

Generate the character profile now:`

// Repo persists generated characters.
type Repo interface {
	Create(ctx context.Context, character *types.Character) error
}

// Service generates and persists characters.
type Service struct {
	repo            Repo
	registry        *llm.Registry
	defaultProvider string
	defaultModel    string
}

// NewService returns a character Service.
func NewService(repo Repo, registry *llm.Registry, defaultProvider, defaultModel string) *Service {
	return &Service{
		repo:            repo,
		registry:        registry,
		defaultProvider: defaultProvider,
		defaultModel:    defaultModel,
	}
}

// Generate asks the LLM to expand the concept into a profile, falls back
// to the concept itself where parsing fails, and persists the result. The
// chosen provider and model are pinned on the character so later turns
// resolve them from the entity, not ambient state.
func (s *Service) Generate(ctx context.Context, userID, concept, providerName, model string) (*types.Character, error) {
	if strings.TrimSpace(concept) == "" {
		return nil, fmt.Errorf("character concept cannot be empty")
	}
	if providerName == "" {
		providerName = s.defaultProvider
	}
	if model == "" {
		model = s.defaultModel
	}

	provider, err := s.registry.Resolve(providerName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve provider: %w", err)
	}

	generated, err := provider.Generate(ctx, []llm.Message{
		{Role: types.RoleUser, Content: fmt.Sprintf(generationInstruction, concept)},
	}, llm.Options{
		Model:       model,
		Temperature: 0.8,
		MaxTokens:   1000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate character profile: %w", err)
	}

	name := extractField(generated, "Character Name")
	summary := extractField(generated, "Personality Summary")
	systemPrompt := extractField(generated, "System Prompt")

	if name == "" {
		name = "Generated Character"
	}
	if summary == "" {
		summary = concept
	}
	if systemPrompt == "" {
		systemPrompt = fmt.Sprintf("You are a character in a VR world. %s", concept)
	}

	char := &types.Character{
		UserID:             userID,
		Name:               name,
		CreationPrompt:     concept,
		SystemPrompt:       systemPrompt,
		PersonalitySummary: summary,
		LLMProvider:        providerName,
		LLMModel:           model,
		Temperature:        0.7,
	}
	if err := s.repo.Create(ctx, char); err != nil {
		return nil, fmt.Errorf("failed to persist character: %w", err)
	}

	slog.Info("generated character", "name", char.Name, "user_id", userID)
	return char, nil
}

// extractField pulls one **Field:** section out of the generated profile.
// The value runs until the next bold field marker or the end of output.
func extractField(content, field string) string {
	marker := fmt.Sprintf("**%s:**", field)
	start := strings.Index(content, marker)
	if start < 0 {
		return ""
	}
	rest := content[start+len(marker):]

	if end := strings.Index(rest, "\n**"); end >= 0 {
		rest = rest[:end]
	}
	if end := strings.Index(rest, "\n---"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
