// Package chat sequences one conversational turn end-to-end: retrieve,
// assemble, generate, persist, extract.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/wildercb/VR-RPGAI/internal/llm"
	"github.com/wildercb/VR-RPGAI/internal/memory"
	"github.com/wildercb/VR-RPGAI/internal/prompt"
	"github.com/wildercb/VR-RPGAI/internal/repository"
	"github.com/wildercb/VR-RPGAI/internal/types"
)

// Turn-fatal failure classes.
var (
	// ErrInvalidInput marks empty messages and similar caller mistakes.
	ErrInvalidInput = errors.New("chat: invalid input")
	// ErrNotFound marks unknown characters or conversations.
	ErrNotFound = errors.New("chat: not found")
)

const defaultMaxTokens = 500

// CharacterStore is the character persistence collaborator.
type CharacterStore interface {
	GetByID(ctx context.Context, id uuid.UUID, userID string) (*types.Character, error)
}

// ConversationStore is the conversation/message persistence collaborator.
type ConversationStore interface {
	GetOrCreate(ctx context.Context, characterID uuid.UUID, userID string) (*types.Conversation, error)
	AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string) (*types.Message, error)
	ListRecent(ctx context.Context, conversationID uuid.UUID, limit int) ([]types.Message, error)
}

// MemoryStore is the semantic memory collaborator.
type MemoryStore interface {
	Retrieve(ctx context.Context, scope types.Scope, query string, limit int) ([]types.RetrievedMemory, error)
	ListAll(ctx context.Context, scope types.Scope) ([]types.Memory, error)
}

// ExtractionQueue accepts completed exchanges for background fact
// extraction.
type ExtractionQueue interface {
	Enqueue(job memory.Job)
}

// Config carries the turn-assembly tunables.
type Config struct {
	CharacterMemoryLimit int
	GlobalMemoryLimit    int
	RecentMessageWindow  int
}

func (c Config) withDefaults() Config {
	if c.CharacterMemoryLimit <= 0 {
		c.CharacterMemoryLimit = 5
	}
	if c.GlobalMemoryLimit <= 0 {
		c.GlobalMemoryLimit = 3
	}
	if c.RecentMessageWindow <= 0 {
		c.RecentMessageWindow = 5
	}
	return c
}

// SendRequest is one incoming chat turn.
type SendRequest struct {
	CharacterID uuid.UUID
	UserID      string
	Message     string
	Game        *types.GameContext
	// FromCharacterID marks a character-to-character turn: the named
	// character speaks to CharacterID. Memory scope keys remain the
	// human user id.
	FromCharacterID *uuid.UUID
}

// Reply is the turn's user-visible result.
type Reply struct {
	ConversationID     uuid.UUID `json:"conversation_id"`
	UserMessageID      uuid.UUID `json:"user_message_id"`
	AssistantMessageID uuid.UUID `json:"assistant_message_id"`
	Content            string    `json:"reply_text"`
}

// Orchestrator owns the per-turn consistency and latency tradeoffs: a
// short synchronous critical path, memory degradation instead of turn
// failure, and a detached extraction handoff.
type Orchestrator struct {
	characters    CharacterStore
	conversations ConversationStore
	memories      MemoryStore
	registry      *llm.Registry
	builder       *prompt.Builder
	queue         ExtractionQueue
	cfg           Config
}

// NewOrchestrator wires the turn pipeline.
func NewOrchestrator(
	characters CharacterStore,
	conversations ConversationStore,
	memories MemoryStore,
	registry *llm.Registry,
	queue ExtractionQueue,
	cfg Config,
) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		characters:    characters,
		conversations: conversations,
		memories:      memories,
		registry:      registry,
		builder:       prompt.NewBuilder(cfg.RecentMessageWindow),
		queue:         queue,
		cfg:           cfg,
	}
}

// SendMessage runs one turn. Memory retrieval failures degrade to an
// empty memory context; generation and persistence failures abort the
// turn. Extraction is enqueued after the reply is complete and is never
// awaited.
func (o *Orchestrator) SendMessage(ctx context.Context, req SendRequest) (*Reply, error) {
	// 1. Validate.
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: message cannot be empty", ErrInvalidInput)
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	character, err := o.characters.GetByID(ctx, req.CharacterID, req.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("character %s: %w", req.CharacterID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load character: %w", err)
	}

	var speaker *types.Character
	if req.FromCharacterID != nil {
		speaker, err = o.characters.GetByID(ctx, *req.FromCharacterID, req.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("character %s: %w", *req.FromCharacterID, ErrNotFound)
			}
			return nil, fmt.Errorf("failed to load sending character: %w", err)
		}
	}

	conversation, err := o.conversations.GetOrCreate(ctx, character.ID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation: %w", err)
	}

	// 2. Retrieve memory, degrading to an empty context on failure.
	characterMemories := o.retrieve(ctx, types.CharacterScope(req.UserID, character.ID), req.Message, o.cfg.CharacterMemoryLimit)
	globalMemories := o.retrieve(ctx, types.GlobalScope(req.UserID), req.Message, o.cfg.GlobalMemoryLimit)

	history, err := o.conversations.ListRecent(ctx, conversation.ID, o.cfg.RecentMessageWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}

	// 3. Assemble.
	messages, err := o.builder.Build(prompt.BuildContext{
		Character:         character,
		CharacterMemories: characterMemories,
		GlobalMemories:    globalMemories,
		History:           history,
		UserMessage:       req.Message,
		Game:              req.Game,
		Speaker:           speaker,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assemble context: %w", err)
	}

	// 4. Generate. Not retried here; retry policy belongs to the
	// provider collaborator.
	provider, err := o.registry.Resolve(character.LLMProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve provider: %w", err)
	}
	replyText, err := provider.Generate(ctx, messages, llm.Options{
		Model:       character.LLMModel,
		Temperature: character.Temperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate reply: %w", err)
	}

	// 5. Persist both halves before the turn counts as done: the caller
	// needs message ids and the stored text feeds future windows.
	userMsg, err := o.conversations.AppendMessage(ctx, conversation.ID, types.RoleUser, req.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}
	assistantMsg, err := o.conversations.AppendMessage(ctx, conversation.ID, types.RoleAssistant, replyText)
	if err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}

	// 6. Hand the exchange to the extraction queue; never awaited, and
	// not cancelled if the client goes away.
	o.queue.Enqueue(memory.Job{
		UserID:           req.UserID,
		CharacterID:      character.ID,
		ConversationID:   conversation.ID,
		UserMessage:      req.Message,
		AssistantMessage: replyText,
	})

	return &Reply{
		ConversationID:     conversation.ID,
		UserMessageID:      userMsg.ID,
		AssistantMessageID: assistantMsg.ID,
		Content:            replyText,
	}, nil
}

// ListMemories returns the flat fact list a character holds about a user.
func (o *Orchestrator) ListMemories(ctx context.Context, characterID uuid.UUID, userID string) ([]types.Memory, error) {
	if _, err := o.characters.GetByID(ctx, characterID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("character %s: %w", characterID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load character: %w", err)
	}
	return o.memories.ListAll(ctx, types.CharacterScope(userID, characterID))
}

// retrieve wraps one scoped retrieval with the degrade-don't-fail policy.
func (o *Orchestrator) retrieve(ctx context.Context, scope types.Scope, query string, limit int) []types.RetrievedMemory {
	memories, err := o.memories.Retrieve(ctx, scope, query, limit)
	if err != nil {
		slog.Warn("memory retrieval failed, continuing without memory",
			"user_id", scope.UserID, "global", scope.IsGlobal(), "error", err.Error())
		return nil
	}
	return memories
}
