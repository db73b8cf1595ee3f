package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wildercb/VR-RPGAI/internal/llm"
	"github.com/wildercb/VR-RPGAI/internal/types"
)

// Fact scope labels produced by the extraction model.
const (
	FactScopeCharacter = "character"
	FactScopeGlobal    = "global"
)

const maxFactsPerExchange = 5

// extractionInstruction asks the model to return only a JSON array of
// labeled facts. The character/global boundary is an LLM judgment call;
// classification of similar facts is not stable across runs.
const extractionInstruction = `You are a memory extractor for a role-playing NPC system.
Given one exchange between a user and an NPC, extract the facts worth remembering.

Rules:
- Return at most 5 facts.
- Each fact is one short, atomic, declarative sentence about the user or about what happened.
- Classify each fact with a "scope":
  - "global" for facts about the user's identity, preferences, or biography (true regardless of which NPC they talk to)
  - "character" for facts about what transpired specifically with this NPC
- Skip small talk; if there is nothing worth remembering, return an empty array.
- Respond with ONLY a JSON array, no prose, in this form:
  [{"content": "...", "scope": "global"}]`

// Fact is one extracted atomic fact with its visibility classification.
type Fact struct {
	Content string `json:"content"`
	Scope   string `json:"scope"`
}

// Extractor decomposes a completed exchange into atomic facts via the LLM
// provider configured for extraction.
type Extractor struct {
	provider llm.Provider
	model    string
}

// NewExtractor returns an Extractor bound to one provider and model.
func NewExtractor(provider llm.Provider, model string) *Extractor {
	return &Extractor{
		provider: provider,
		model:    model,
	}
}

// Extract asks the model to decompose the exchange. Provider failures are
// returned; unparseable output yields zero facts and a logged warning.
func (e *Extractor) Extract(ctx context.Context, userMessage, assistantMessage string) ([]Fact, error) {
	exchange := fmt.Sprintf("user: %s\nassistant: %s", userMessage, assistantMessage)

	raw, err := e.provider.Generate(ctx, []llm.Message{
		{Role: types.RoleSystem, Content: extractionInstruction},
		{Role: types.RoleUser, Content: exchange},
	}, llm.Options{
		Model:       e.model,
		Temperature: 0.1,
		MaxTokens:   500,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate extraction: %w", err)
	}

	facts, err := parseFactsJSON(raw)
	if err != nil {
		slog.Warn("discarding unparseable extraction output", "error", err.Error())
		return nil, nil
	}
	return facts, nil
}

// parseFactsJSON locates the JSON array in the model output (tolerating
// code fences and surrounding prose) and decodes it.
func parseFactsJSON(raw string) ([]Fact, error) {
	clean := strings.TrimSpace(raw)
	start := strings.Index(clean, "[")
	end := strings.LastIndex(clean, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in extraction output")
	}
	clean = clean[start : end+1]

	var facts []Fact
	if err := json.Unmarshal([]byte(clean), &facts); err != nil {
		return nil, fmt.Errorf("failed to parse facts json: %w", err)
	}

	out := facts[:0]
	for _, fact := range facts {
		fact.Content = strings.TrimSpace(fact.Content)
		if fact.Content == "" {
			continue
		}
		fact.Scope = normalizeFactScope(fact.Scope)
		out = append(out, fact)
		if len(out) == maxFactsPerExchange {
			break
		}
	}
	return out, nil
}

// normalizeFactScope maps model output onto the two known labels. Unknown
// labels default to character scope, the narrower partition.
func normalizeFactScope(scope string) string {
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case FactScopeGlobal:
		return FactScopeGlobal
	default:
		return FactScopeCharacter
	}
}
