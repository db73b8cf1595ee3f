package memory

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestWorkerSynchronousModeRoutesScopes(t *testing.T) {
	store := &mockStore{}
	svc := NewService(&stubEmbedder{documentVec: []float32{1, 0}}, store)
	provider := &scriptedProvider{responses: []string{
		`[{"content": "The user's name is Jordan", "scope": "global"}, {"content": "Discussed map restoration", "scope": "character"}]`,
	}}
	worker := NewWorker(NewExtractor(provider, "llama3.1"), svc, 0, 0)
	defer worker.Close()

	characterID := uuid.New()
	worker.Enqueue(Job{
		UserID:           "u1",
		CharacterID:      characterID,
		ConversationID:   uuid.New(),
		UserMessage:      "My name is Jordan",
		AssistantMessage: "Nice to meet you, Jordan!",
	})

	if len(store.inserted) != 2 {
		t.Fatalf("expected 2 facts written, got %d", len(store.inserted))
	}
	global, character := store.inserted[0], store.inserted[1]
	if global.CharacterID != nil {
		t.Fatalf("expected global fact to have no character id, got %v", global.CharacterID)
	}
	if character.CharacterID == nil || *character.CharacterID != characterID {
		t.Fatalf("expected character fact scoped to %s, got %v", characterID, character.CharacterID)
	}
	if global.Metadata["source"] != "extraction" {
		t.Fatalf("expected extraction source metadata, got %v", global.Metadata)
	}
}

func TestWorkerSwallowsExtractionFailure(t *testing.T) {
	store := &mockStore{}
	svc := NewService(&stubEmbedder{documentVec: []float32{1}}, store)
	provider := &scriptedProvider{err: errors.New("model overloaded")}
	worker := NewWorker(NewExtractor(provider, "llama3.1"), svc, 0, 0)

	worker.Enqueue(Job{UserID: "u1", CharacterID: uuid.New(), ConversationID: uuid.New(),
		UserMessage: "hi", AssistantMessage: "hello"})

	if len(store.inserted) != 0 {
		t.Fatalf("expected no writes after extraction failure, got %d", len(store.inserted))
	}
}

func TestWorkerWritesNothingForEmptyExchange(t *testing.T) {
	store := &mockStore{}
	svc := NewService(&stubEmbedder{documentVec: []float32{1}}, store)
	provider := &scriptedProvider{responses: []string{"[]"}}
	worker := NewWorker(NewExtractor(provider, "llama3.1"), svc, 0, 0)

	worker.Enqueue(Job{UserID: "u1", CharacterID: uuid.New(), ConversationID: uuid.New(),
		UserMessage: "ok", AssistantMessage: "ok"})

	if len(store.inserted) != 0 {
		t.Fatalf("expected no writes for empty extraction, got %d", len(store.inserted))
	}
}

func TestWorkerDrainsQueueOnClose(t *testing.T) {
	store := &mockStore{}
	svc := NewService(&stubEmbedder{documentVec: []float32{1}}, store)
	provider := &scriptedProvider{responses: []string{
		`[{"content": "fact one", "scope": "global"}]`,
		`[{"content": "fact two", "scope": "global"}]`,
	}}
	worker := NewWorker(NewExtractor(provider, "llama3.1"), svc, 1, 8)

	worker.Enqueue(Job{UserID: "u1", CharacterID: uuid.New(), ConversationID: uuid.New(),
		UserMessage: "a", AssistantMessage: "b"})
	worker.Enqueue(Job{UserID: "u1", CharacterID: uuid.New(), ConversationID: uuid.New(),
		UserMessage: "c", AssistantMessage: "d"})
	worker.Close()

	if len(store.inserted) != 2 {
		t.Fatalf("expected both queued jobs processed before Close returned, got %d writes", len(store.inserted))
	}
}
