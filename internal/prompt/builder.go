// Package prompt assembles the bounded message sequence handed to the LLM
// provider.
package prompt

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/wildercb/VR-RPGAI/internal/llm"
	"github.com/wildercb/VR-RPGAI/internal/types"
)

// maxDocumentChars caps each reference document's contribution to the
// system prompt.
const maxDocumentChars = 2000

// BuildContext contains all inputs for one turn's prompt.
type BuildContext struct {
	Character         *types.Character
	CharacterMemories []types.RetrievedMemory
	GlobalMemories    []types.RetrievedMemory
	// History is the recent raw-message window, oldest to newest.
	History     []types.Message
	UserMessage string
	Game        *types.GameContext
	// Speaker is set for character-to-character turns: the character
	// whose message this is, announced inside the system prompt.
	Speaker *types.Character
}

// Builder deterministically assembles prompts within fixed windows.
// Bounding token cost is the point: full history is unbounded, semantic
// recall is O(limit).
type Builder struct {
	recentWindow int
}

// NewBuilder creates a prompt Builder.
func NewBuilder(recentWindow int) *Builder {
	if recentWindow <= 0 {
		recentWindow = 5
	}
	return &Builder{recentWindow: recentWindow}
}

type templateDoc struct {
	Filename string
	Content  string
}

// Build produces the ordered message list: one system message, the recent
// window in order, then the current user message.
func (b *Builder) Build(ctx BuildContext) ([]llm.Message, error) {
	if ctx.Character == nil {
		return nil, fmt.Errorf("character is required")
	}
	if ctx.UserMessage == "" {
		return nil, fmt.Errorf("user message is required")
	}

	docs := make([]templateDoc, 0, len(ctx.Character.Documents))
	for _, doc := range ctx.Character.Documents {
		content := doc.Content
		if len(content) > maxDocumentChars {
			content = content[:maxDocumentChars]
		}
		docs = append(docs, templateDoc{Filename: doc.Filename, Content: content})
	}

	speaker := ""
	if ctx.Speaker != nil {
		speaker = ctx.Speaker.Name
	}

	data := struct {
		SystemPrompt      string
		Documents         []templateDoc
		CharacterMemories []types.RetrievedMemory
		GlobalMemories    []types.RetrievedMemory
		GameLines         []string
		Speaker           string
	}{
		SystemPrompt:      ctx.Character.SystemPrompt,
		Documents:         docs,
		CharacterMemories: ctx.CharacterMemories,
		GlobalMemories:    ctx.GlobalMemories,
		GameLines:         gameLines(ctx.Game),
		Speaker:           speaker,
	}

	var buf bytes.Buffer
	if err := systemTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to build system prompt: %w", err)
	}

	history := ctx.History
	if len(history) > b.recentWindow {
		history = history[len(history)-b.recentWindow:]
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: types.RoleSystem, Content: buf.String()})
	for _, msg := range history {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, llm.Message{Role: types.RoleUser, Content: ctx.UserMessage})
	return messages, nil
}

// gameLines renders the optional engine-side state as ordered lines.
func gameLines(game *types.GameContext) []string {
	if game.IsEmpty() {
		return nil
	}

	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, label+": "+value)
		}
	}
	add("Location", game.Location)
	add("Weather", game.Weather)
	add("Time", game.TimeOfDay)
	add("Your mood", game.NPCMood)
	add("Recent event", game.RecentEvent)
	if len(game.NearbyNPCs) > 0 {
		lines = append(lines, "Nearby NPCs: "+strings.Join(game.NearbyNPCs, ", "))
	}
	if len(game.Custom) > 0 {
		keys := make([]string, 0, len(game.Custom))
		for key := range game.Custom {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			add(key, game.Custom[key])
		}
	}
	return lines
}
