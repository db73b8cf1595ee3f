package character

import (
	"context"
	"errors"
	"testing"

	"github.com/wildercb/VR-RPGAI/internal/llm"
	"github.com/wildercb/VR-RPGAI/internal/types"
)

type fakeRepo struct {
	created   []*types.Character
	createErr error
}

func (r *fakeRepo) Create(_ context.Context, character *types.Character) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.created = append(r.created, character)
	return nil
}

type fakeProvider struct {
	name     string
	response string
	err      error
	prompts  [][]llm.Message
	opts     []llm.Options
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Generate(_ context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	p.prompts = append(p.prompts, messages)
	p.opts = append(p.opts, opts)
	if p.err != nil {
		return "", p.err
	}
	return p.response, nil
}

const wellFormedProfile = `**Character Name:** Kael Emberforge

**Personality Summary:** A gruff but warm-hearted blacksmith who takes pride in his craft. He speaks plainly and judges people by their deeds.

**System Prompt:**
You are Kael Emberforge, the village blacksmith. You speak in short, direct sentences and know everything about metalwork.

---

Some trailing commentary from the model.`

func newTestService(provider *fakeProvider) (*Service, *fakeRepo) {
	repo := &fakeRepo{}
	registry := llm.NewRegistry()
	registry.Register(provider)
	return NewService(repo, registry, provider.Name(), "llama3.1"), repo
}

func TestGenerateParsesProfile(t *testing.T) {
	provider := &fakeProvider{name: "ollama", response: wellFormedProfile}
	svc, repo := newTestService(provider)

	char, err := svc.Generate(context.Background(), "u1", "a gruff village blacksmith", "", "")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if char.Name != "Kael Emberforge" {
		t.Fatalf("unexpected name: %q", char.Name)
	}
	if char.PersonalitySummary == "" || char.PersonalitySummary[0] != 'A' {
		t.Fatalf("unexpected summary: %q", char.PersonalitySummary)
	}
	if char.SystemPrompt != "You are Kael Emberforge, the village blacksmith. You speak in short, direct sentences and know everything about metalwork." {
		t.Fatalf("unexpected system prompt: %q", char.SystemPrompt)
	}
	if char.CreationPrompt != "a gruff village blacksmith" {
		t.Fatalf("expected concept preserved, got %q", char.CreationPrompt)
	}
	if char.LLMProvider != "ollama" || char.LLMModel != "llama3.1" {
		t.Fatalf("expected defaults pinned on character, got %q/%q", char.LLMProvider, char.LLMModel)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected character persisted, got %d", len(repo.created))
	}
}

func TestGenerateFallsBackOnUnparseableProfile(t *testing.T) {
	provider := &fakeProvider{name: "ollama", response: "Sure! Here is a lovely character for you."}
	svc, _ := newTestService(provider)

	char, err := svc.Generate(context.Background(), "u1", "a wandering bard", "", "")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if char.Name != "Generated Character" {
		t.Fatalf("expected fallback name, got %q", char.Name)
	}
	if char.PersonalitySummary != "a wandering bard" {
		t.Fatalf("expected concept as summary fallback, got %q", char.PersonalitySummary)
	}
	if char.SystemPrompt != "You are a character in a VR world. a wandering bard" {
		t.Fatalf("unexpected system prompt fallback: %q", char.SystemPrompt)
	}
}

func TestGeneratePinsExplicitProviderAndModel(t *testing.T) {
	provider := &fakeProvider{name: "openai", response: wellFormedProfile}
	svc, _ := newTestService(provider)

	char, err := svc.Generate(context.Background(), "u1", "a sly merchant", "openai", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if char.LLMProvider != "openai" || char.LLMModel != "gpt-4o-mini" {
		t.Fatalf("expected explicit provider/model pinned, got %q/%q", char.LLMProvider, char.LLMModel)
	}
	if provider.opts[0].Model != "gpt-4o-mini" {
		t.Fatalf("expected generation with requested model, got %q", provider.opts[0].Model)
	}
}

func TestGenerateRejectsEmptyConcept(t *testing.T) {
	svc, _ := newTestService(&fakeProvider{name: "ollama"})
	if _, err := svc.Generate(context.Background(), "u1", "   ", "", ""); err == nil {
		t.Fatal("expected error for empty concept")
	}
}

func TestGeneratePropagatesProviderFailure(t *testing.T) {
	provider := &fakeProvider{name: "ollama", err: llm.ErrUnavailable}
	svc, repo := newTestService(provider)

	if _, err := svc.Generate(context.Background(), "u1", "a bard", "", ""); !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatal("expected nothing persisted on generation failure")
	}
}

func TestExtractField(t *testing.T) {
	if got := extractField(wellFormedProfile, "Character Name"); got != "Kael Emberforge" {
		t.Fatalf("unexpected field value: %q", got)
	}
	if got := extractField(wellFormedProfile, "Missing Field"); got != "" {
		t.Fatalf("expected empty value for missing field, got %q", got)
	}
}
