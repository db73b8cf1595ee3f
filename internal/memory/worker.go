package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wildercb/VR-RPGAI/internal/types"
)

const extractionTimeout = 2 * time.Minute

// Job is one completed exchange queued for fact extraction.
type Job struct {
	UserID           string
	CharacterID      uuid.UUID
	ConversationID   uuid.UUID
	UserMessage      string
	AssistantMessage string
}

// Worker consumes extraction jobs off a buffered channel and writes the
// resulting facts. Jobs run detached from any request context: a client
// disconnecting after its turn completes does not cancel extraction.
// Failures are logged and swallowed; memory is an enhancement, not a
// correctness requirement of the chat function.
type Worker struct {
	extractor *Extractor
	service   *Service
	jobs      chan Job
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWorker starts workers goroutines over a queue of queueSize. With
// workers <= 0 the Worker runs synchronously: Enqueue processes the job
// inline, which makes extraction deterministic in tests.
func NewWorker(extractor *Extractor, service *Service, workers, queueSize int) *Worker {
	w := &Worker{
		extractor: extractor,
		service:   service,
	}
	if workers <= 0 {
		return w
	}

	if queueSize <= 0 {
		queueSize = 64
	}
	w.jobs = make(chan Job, queueSize)
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for job := range w.jobs {
				w.process(job)
			}
		}()
	}
	return w
}

// Enqueue hands a job to the pool without blocking the caller. When the
// queue is saturated the job is dropped with an error log rather than
// adding latency to the chat path.
func (w *Worker) Enqueue(job Job) {
	if w.jobs == nil {
		w.process(job)
		return
	}
	select {
	case w.jobs <- job:
	default:
		slog.Error("extraction queue saturated, dropping job",
			"conversation_id", job.ConversationID, "user_id", job.UserID)
	}
}

// Close stops accepting jobs and drains the in-flight queue.
func (w *Worker) Close() {
	if w.jobs == nil {
		return
	}
	w.closeOnce.Do(func() {
		close(w.jobs)
	})
	w.wg.Wait()
}

func (w *Worker) process(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), extractionTimeout)
	defer cancel()

	facts, err := w.extractor.Extract(ctx, job.UserMessage, job.AssistantMessage)
	if err != nil {
		slog.Error("memory extraction failed",
			"conversation_id", job.ConversationID, "user_id", job.UserID, "error", err.Error())
		return
	}
	if len(facts) == 0 {
		return
	}

	metadata := map[string]string{
		"conversation_id": job.ConversationID.String(),
		"source":          "extraction",
	}

	written := 0
	for _, fact := range facts {
		scope := types.CharacterScope(job.UserID, job.CharacterID)
		if fact.Scope == FactScopeGlobal {
			scope = types.GlobalScope(job.UserID)
		}
		if _, err := w.service.Write(ctx, scope, fact.Content, metadata); err != nil {
			slog.Error("failed to write extracted fact",
				"conversation_id", job.ConversationID, "scope", fact.Scope, "error", err.Error())
			continue
		}
		written++
	}

	slog.Info("extracted memories from exchange",
		"conversation_id", job.ConversationID, "facts", written)
}
