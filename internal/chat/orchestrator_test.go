package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wildercb/VR-RPGAI/internal/llm"
	"github.com/wildercb/VR-RPGAI/internal/memory"
	"github.com/wildercb/VR-RPGAI/internal/repository"
	"github.com/wildercb/VR-RPGAI/internal/types"
)

type fakeCharacters struct {
	byID map[uuid.UUID]*types.Character
}

func (f *fakeCharacters) GetByID(_ context.Context, id uuid.UUID, userID string) (*types.Character, error) {
	character, ok := f.byID[id]
	if !ok || character.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return character, nil
}

type fakeConversations struct {
	conversations map[uuid.UUID]*types.Conversation
	messages      map[uuid.UUID][]types.Message
	appendErr     error
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{
		conversations: make(map[uuid.UUID]*types.Conversation),
		messages:      make(map[uuid.UUID][]types.Message),
	}
}

func (f *fakeConversations) GetOrCreate(_ context.Context, characterID uuid.UUID, userID string) (*types.Conversation, error) {
	for _, conv := range f.conversations {
		if conv.CharacterID == characterID && conv.UserID == userID {
			return conv, nil
		}
	}
	conv := &types.Conversation{
		ID:          uuid.New(),
		CharacterID: characterID,
		UserID:      userID,
		CreatedAt:   time.Now().UTC(),
	}
	f.conversations[conv.ID] = conv
	return conv, nil
}

func (f *fakeConversations) AppendMessage(_ context.Context, conversationID uuid.UUID, role, content string) (*types.Message, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	msg := types.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	f.messages[conversationID] = append(f.messages[conversationID], msg)
	return &msg, nil
}

func (f *fakeConversations) ListRecent(_ context.Context, conversationID uuid.UUID, limit int) ([]types.Message, error) {
	msgs := f.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// keywordEmbedder maps texts onto fixed axes by keyword presence, giving
// deterministic cosine geometry without a model.
type keywordEmbedder struct {
	axes []string
}

func (e *keywordEmbedder) embed(text string) []float32 {
	vec := make([]float32, len(e.axes)+1)
	vec[len(e.axes)] = 0.1
	lower := strings.ToLower(text)
	for i, axis := range e.axes {
		if strings.Contains(lower, axis) {
			vec[i] = 1
		}
	}
	return vec
}

func (e *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *keywordEmbedder) EmbedDocument(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *keywordEmbedder) Dimensions() int { return len(e.axes) + 1 }

type recordingProvider struct {
	name    string
	reply   string
	err     error
	prompts [][]llm.Message
}

func (p *recordingProvider) Name() string { return p.name }

func (p *recordingProvider) Generate(_ context.Context, messages []llm.Message, _ llm.Options) (string, error) {
	p.prompts = append(p.prompts, messages)
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func (p *recordingProvider) lastSystemPrompt(t *testing.T) string {
	t.Helper()
	if len(p.prompts) == 0 {
		t.Fatal("provider was never called")
	}
	return p.prompts[len(p.prompts)-1][0].Content
}

type scriptedProvider struct {
	responses []string
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(_ context.Context, _ []llm.Message, _ llm.Options) (string, error) {
	if len(p.responses) == 0 {
		return "[]", nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

type failingMemories struct{}

func (failingMemories) Retrieve(_ context.Context, _ types.Scope, _ string, _ int) ([]types.RetrievedMemory, error) {
	return nil, memory.ErrUnavailable
}

func (failingMemories) ListAll(_ context.Context, _ types.Scope) ([]types.Memory, error) {
	return nil, memory.ErrUnavailable
}

type captureQueue struct {
	jobs []memory.Job
}

func (q *captureQueue) Enqueue(job memory.Job) { q.jobs = append(q.jobs, job) }

type testEnv struct {
	orchestrator *Orchestrator
	characters   *fakeCharacters
	convs        *fakeConversations
	genProvider  *recordingProvider
	service      *memory.Service
	blacksmith   *types.Character
	innkeeper    *types.Character
}

func newTestEnv(t *testing.T, extractionResponses []string) *testEnv {
	t.Helper()

	blacksmith := &types.Character{ID: uuid.New(), UserID: "u1", Name: "Kael",
		SystemPrompt: "You are Kael, a blacksmith.", LLMProvider: "fake", LLMModel: "test"}
	innkeeper := &types.Character{ID: uuid.New(), UserID: "u1", Name: "Mira",
		SystemPrompt: "You are Mira, an innkeeper.", LLMProvider: "fake", LLMModel: "test"}

	characters := &fakeCharacters{byID: map[uuid.UUID]*types.Character{
		blacksmith.ID: blacksmith,
		innkeeper.ID:  innkeeper,
	}}
	convs := newFakeConversations()

	embedder := &keywordEmbedder{axes: []string{"jordan", "map", "collect", "name", "restoration"}}
	service := memory.NewService(embedder, memory.NewChromemStore())

	extractor := memory.NewExtractor(&scriptedProvider{responses: extractionResponses}, "test")
	worker := memory.NewWorker(extractor, service, 0, 0)

	genProvider := &recordingProvider{name: "fake", reply: "As you say."}
	registry := llm.NewRegistry()
	registry.Register(genProvider)

	return &testEnv{
		orchestrator: NewOrchestrator(characters, convs, service, registry, worker, Config{}),
		characters:   characters,
		convs:        convs,
		genProvider:  genProvider,
		service:      service,
		blacksmith:   blacksmith,
		innkeeper:    innkeeper,
	}
}

func TestSendMessageExtractsAndRecalls(t *testing.T) {
	env := newTestEnv(t, []string{
		`[{"content": "The user's name is Jordan", "scope": "global"},
		  {"content": "The user collects vintage maps", "scope": "global"},
		  {"content": "Talked about map restoration with Kael", "scope": "character"}]`,
	})
	ctx := context.Background()

	reply, err := env.orchestrator.SendMessage(ctx, SendRequest{
		CharacterID: env.blacksmith.ID,
		UserID:      "u1",
		Message:     "My name is Jordan and I collect vintage maps",
	})
	if err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if reply.Content == "" {
		t.Fatal("expected non-empty reply")
	}

	// The synchronous worker has written the facts; the next turn's
	// prompt should recall them.
	if _, err := env.orchestrator.SendMessage(ctx, SendRequest{
		CharacterID: env.blacksmith.ID,
		UserID:      "u1",
		Message:     "What do you know about my map collection?",
	}); err != nil {
		t.Fatalf("second SendMessage returned error: %v", err)
	}

	system := env.genProvider.lastSystemPrompt(t)
	if !strings.Contains(system, "The user collects vintage maps") {
		t.Fatalf("expected global fact recalled:\n%s", system)
	}
	if !strings.Contains(system, "Talked about map restoration with Kael") {
		t.Fatalf("expected character fact recalled:\n%s", system)
	}
}

func TestSendMessageScopeIsolationAcrossCharacters(t *testing.T) {
	env := newTestEnv(t, []string{
		`[{"content": "The user's name is Jordan", "scope": "global"},
		  {"content": "Talked about map restoration with Kael", "scope": "character"}]`,
	})
	ctx := context.Background()

	if _, err := env.orchestrator.SendMessage(ctx, SendRequest{
		CharacterID: env.blacksmith.ID,
		UserID:      "u1",
		Message:     "My name is Jordan",
	}); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}

	// A different character sees the global fact but not the
	// blacksmith's private one.
	if _, err := env.orchestrator.SendMessage(ctx, SendRequest{
		CharacterID: env.innkeeper.ID,
		UserID:      "u1",
		Message:     "Do you remember my name?",
	}); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}

	system := env.genProvider.lastSystemPrompt(t)
	if !strings.Contains(system, "The user's name is Jordan") {
		t.Fatalf("expected global fact visible to second character:\n%s", system)
	}
	if strings.Contains(system, "map restoration") {
		t.Fatalf("expected character fact hidden from second character:\n%s", system)
	}
}

func TestSendMessageDegradesOnMemoryOutage(t *testing.T) {
	blacksmith := &types.Character{ID: uuid.New(), UserID: "u1", Name: "Kael",
		SystemPrompt: "You are Kael.", LLMProvider: "fake"}
	characters := &fakeCharacters{byID: map[uuid.UUID]*types.Character{blacksmith.ID: blacksmith}}
	genProvider := &recordingProvider{name: "fake", reply: "Hello, traveler."}
	registry := llm.NewRegistry()
	registry.Register(genProvider)
	queue := &captureQueue{}

	orchestrator := NewOrchestrator(characters, newFakeConversations(), failingMemories{}, registry, queue, Config{})

	reply, err := orchestrator.SendMessage(context.Background(), SendRequest{
		CharacterID: blacksmith.ID,
		UserID:      "u1",
		Message:     "hello there",
	})
	if err != nil {
		t.Fatalf("expected turn to succeed without memory, got %v", err)
	}
	if reply.Content != "Hello, traveler." {
		t.Fatalf("unexpected reply: %q", reply.Content)
	}
	system := genProvider.lastSystemPrompt(t)
	if strings.Contains(system, "remember") || strings.Contains(system, "General facts") {
		t.Fatalf("expected memory sections omitted in degraded turn:\n%s", system)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("expected extraction still enqueued, got %d jobs", len(queue.jobs))
	}
}

func TestSendMessageRapidFireTurns(t *testing.T) {
	env := newTestEnv(t, []string{
		`[{"content": "The user's name is Jordan", "scope": "global"}]`,
		`[{"content": "The user collects vintage maps", "scope": "global"}]`,
	})
	ctx := context.Background()

	for _, message := range []string{"My name is Jordan", "I collect vintage maps"} {
		if _, err := env.orchestrator.SendMessage(ctx, SendRequest{
			CharacterID: env.blacksmith.ID,
			UserID:      "u1",
			Message:     message,
		}); err != nil {
			t.Fatalf("SendMessage(%q) returned error: %v", message, err)
		}
	}

	facts, err := env.service.ListAll(ctx, types.GlobalScope("u1"))
	if err != nil {
		t.Fatalf("ListAll returned error: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("expected both exchanges extracted, got %d facts", len(facts))
	}
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.orchestrator.SendMessage(ctx, SendRequest{
		CharacterID: env.blacksmith.ID, UserID: "u1", Message: "   ",
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank message, got %v", err)
	}

	_, err = env.orchestrator.SendMessage(ctx, SendRequest{
		CharacterID: env.blacksmith.ID, Message: "hello",
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing user, got %v", err)
	}

	_, err = env.orchestrator.SendMessage(ctx, SendRequest{
		CharacterID: uuid.New(), UserID: "u1", Message: "hello",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown character, got %v", err)
	}

	// Characters are invisible to other users.
	_, err = env.orchestrator.SendMessage(ctx, SendRequest{
		CharacterID: env.blacksmith.ID, UserID: "u2", Message: "hello",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another user's character, got %v", err)
	}
}

func TestSendMessageGenerationFailureAbortsTurn(t *testing.T) {
	env := newTestEnv(t, nil)
	env.genProvider.err = llm.ErrUnavailable

	_, err := env.orchestrator.SendMessage(context.Background(), SendRequest{
		CharacterID: env.blacksmith.ID, UserID: "u1", Message: "hello",
	})
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected generation error to propagate, got %v", err)
	}
	for _, msgs := range env.convs.messages {
		if len(msgs) != 0 {
			t.Fatalf("expected no messages persisted after failed generation, got %+v", msgs)
		}
	}
}

func TestSendMessagePersistsBothHalves(t *testing.T) {
	env := newTestEnv(t, nil)

	reply, err := env.orchestrator.SendMessage(context.Background(), SendRequest{
		CharacterID: env.blacksmith.ID, UserID: "u1", Message: "hello",
	})
	if err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	msgs := env.convs.messages[reply.ConversationID]
	if len(msgs) != 2 {
		t.Fatalf("expected user and assistant messages persisted, got %d", len(msgs))
	}
	if msgs[0].Role != types.RoleUser || msgs[1].Role != types.RoleAssistant {
		t.Fatalf("unexpected roles: %+v", msgs)
	}
	if msgs[0].ID != reply.UserMessageID || msgs[1].ID != reply.AssistantMessageID {
		t.Fatal("expected reply to carry persisted message ids")
	}
}

func TestSendMessageCharacterToCharacter(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.orchestrator.SendMessage(context.Background(), SendRequest{
		CharacterID:     env.blacksmith.ID,
		UserID:          "u1",
		Message:         "Good morning, smith",
		FromCharacterID: &env.innkeeper.ID,
	})
	if err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	system := env.genProvider.lastSystemPrompt(t)
	if !strings.Contains(system, "This message is from Mira") {
		t.Fatalf("expected speaker note for character turn:\n%s", system)
	}

	unknown := uuid.New()
	_, err = env.orchestrator.SendMessage(context.Background(), SendRequest{
		CharacterID:     env.blacksmith.ID,
		UserID:          "u1",
		Message:         "hello",
		FromCharacterID: &unknown,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown speaker, got %v", err)
	}
}

func TestSendMessageEnqueuesExchange(t *testing.T) {
	blacksmith := &types.Character{ID: uuid.New(), UserID: "u1", Name: "Kael",
		SystemPrompt: "You are Kael.", LLMProvider: "fake"}
	characters := &fakeCharacters{byID: map[uuid.UUID]*types.Character{blacksmith.ID: blacksmith}}
	genProvider := &recordingProvider{name: "fake", reply: "Well met."}
	registry := llm.NewRegistry()
	registry.Register(genProvider)
	queue := &captureQueue{}

	service := memory.NewService(&keywordEmbedder{axes: []string{"a"}}, memory.NewChromemStore())
	orchestrator := NewOrchestrator(characters, newFakeConversations(), service, registry, queue, Config{})

	reply, err := orchestrator.SendMessage(context.Background(), SendRequest{
		CharacterID: blacksmith.ID, UserID: "u1", Message: "hello",
	})
	if err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("expected 1 extraction job, got %d", len(queue.jobs))
	}
	job := queue.jobs[0]
	if job.UserID != "u1" || job.CharacterID != blacksmith.ID || job.ConversationID != reply.ConversationID {
		t.Fatalf("unexpected job identity: %+v", job)
	}
	if job.UserMessage != "hello" || job.AssistantMessage != "Well met." {
		t.Fatalf("unexpected job exchange: %+v", job)
	}
}

func TestListMemories(t *testing.T) {
	env := newTestEnv(t, []string{
		`[{"content": "Talked about map restoration with Kael", "scope": "character"}]`,
	})
	ctx := context.Background()

	if _, err := env.orchestrator.SendMessage(ctx, SendRequest{
		CharacterID: env.blacksmith.ID, UserID: "u1", Message: "Let's talk about map restoration",
	}); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}

	memories, err := env.orchestrator.ListMemories(ctx, env.blacksmith.ID, "u1")
	if err != nil {
		t.Fatalf("ListMemories returned error: %v", err)
	}
	if len(memories) != 1 || memories[0].Content != "Talked about map restoration with Kael" {
		t.Fatalf("unexpected memories: %+v", memories)
	}

	if _, err := env.orchestrator.ListMemories(ctx, uuid.New(), "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown character, got %v", err)
	}
}
