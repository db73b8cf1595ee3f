// Package types holds the domain structs shared across services.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Character is a persisted NPC profile. Immutable after creation except
// for deletion.
type Character struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             string     `json:"user_id"`
	Name               string     `json:"name"`
	CreationPrompt     string     `json:"creation_prompt"`
	SystemPrompt       string     `json:"system_prompt"`
	PersonalitySummary string     `json:"personality_summary"`
	LLMProvider        string     `json:"llm_provider"`
	LLMModel           string     `json:"llm_model"`
	Temperature        float64    `json:"temperature"`
	Documents          []Document `json:"documents,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Document is uploaded reference knowledge attached to a character.
type Document struct {
	ID          uuid.UUID `json:"id"`
	CharacterID uuid.UUID `json:"character_id"`
	Filename    string    `json:"filename"`
	Content     string    `json:"content"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Conversation ties a character to one human user. Created lazily on the
// first message, never explicitly closed.
type Conversation struct {
	ID            uuid.UUID `json:"id"`
	CharacterID   uuid.UUID `json:"character_id"`
	UserID        string    `json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Message is one turn half in a conversation. Append-only.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	AudioFile      string    `json:"audio_file,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Scope selects a memory visibility partition: a (user, character) pair
// for character-scoped memories, or a bare user id for global ones.
type Scope struct {
	UserID      string     `json:"user_id"`
	CharacterID *uuid.UUID `json:"character_id,omitempty"`
}

// CharacterScope returns the scope for memories visible to one character
// about one user.
func CharacterScope(userID string, characterID uuid.UUID) Scope {
	return Scope{UserID: userID, CharacterID: &characterID}
}

// GlobalScope returns the scope for memories visible to every character
// the user interacts with.
func GlobalScope(userID string) Scope {
	return Scope{UserID: userID}
}

// IsGlobal reports whether the scope has no character component.
func (s Scope) IsGlobal() bool {
	return s.CharacterID == nil
}

// Memory is one stored atomic fact.
type Memory struct {
	ID          uuid.UUID         `json:"id"`
	UserID      string            `json:"user_id"`
	CharacterID *uuid.UUID        `json:"character_id,omitempty"`
	Content     string            `json:"content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Embedding   []float32         `json:"-"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Scope returns the visibility partition the memory belongs to.
func (m Memory) Scope() Scope {
	return Scope{UserID: m.UserID, CharacterID: m.CharacterID}
}

// RetrievedMemory is a memory returned from similarity search.
type RetrievedMemory struct {
	ID         uuid.UUID `json:"id"`
	Content    string    `json:"content"`
	Similarity float64   `json:"similarity"`
	CreatedAt  time.Time `json:"created_at"`
}

// GameContext is optional engine-side state attached to a turn.
type GameContext struct {
	Location    string            `json:"location,omitempty"`
	Weather     string            `json:"weather,omitempty"`
	TimeOfDay   string            `json:"time_of_day,omitempty"`
	NPCMood     string            `json:"npc_mood,omitempty"`
	RecentEvent string            `json:"recent_event,omitempty"`
	NearbyNPCs  []string          `json:"nearby_npcs,omitempty"`
	Custom      map[string]string `json:"custom_data,omitempty"`
}

// IsEmpty reports whether the context carries no state at all.
func (g *GameContext) IsEmpty() bool {
	if g == nil {
		return true
	}
	return g.Location == "" && g.Weather == "" && g.TimeOfDay == "" &&
		g.NPCMood == "" && g.RecentEvent == "" && len(g.NearbyNPCs) == 0 &&
		len(g.Custom) == 0
}
