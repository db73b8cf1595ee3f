// Package memory implements the two-tier semantic memory store: embedding,
// scoped vector retrieval, and asynchronous fact extraction.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"google.golang.org/genai"
)

// ErrUnavailable marks embedding or vector-store outages. Callers on the
// chat path treat it as degradable: the turn proceeds without memory.
var ErrUnavailable = errors.New("memory: unavailable")

// Embedder converts text into a fixed-dimension vector. Query and document
// embedding are split so providers that distinguish retrieval task types
// can honor them.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// GenAIEmbedder embeds through the Gemini embedding API, pinned to the
// deployment dimension.
type GenAIEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGenAIEmbedder creates the Gemini embedding implementation.
func NewGenAIEmbedder(ctx context.Context, apiKey, modelName string, dimensions int) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google api key is required for embeddings")
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	if dimensions <= 0 {
		dimensions = 384
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GenAIEmbedder{
		client:     client,
		model:      modelName,
		dimensions: dimensions,
	}, nil
}

func (e *GenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, "RETRIEVAL_QUERY")
}

func (e *GenAIEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, "RETRIEVAL_DOCUMENT")
}

func (e *GenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *GenAIEmbedder) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	dims := int32(e.dimensions)
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed content: %v", ErrUnavailable, err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("%w: empty embedding response", ErrUnavailable)
	}
	values := resp.Embeddings[0].Values
	if len(values) == e.dimensions {
		return values, nil
	}
	if len(values) > e.dimensions {
		slog.Warn("embedding dimensions exceed target, truncating", "actual", len(values), "target", e.dimensions, "model", e.model)
		return values[:e.dimensions], nil
	}
	return nil, fmt.Errorf("embedding dimensions mismatch: got %d want %d", len(values), e.dimensions)
}

// OpenAIEmbedder embeds through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client     openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates the OpenAI embedding implementation.
func NewOpenAIEmbedder(apiKey, modelName string, dimensions int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required for embeddings")
	}
	if modelName == "" {
		modelName = "text-embedding-3-small"
	}
	if dimensions <= 0 {
		dimensions = 384
	}

	return &OpenAIEmbedder{
		client:     openai.NewClient(option.WithAPIKey(apiKey)),
		model:      modelName,
		dimensions: dimensions,
	}, nil
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text)
}

func (e *OpenAIEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text)
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: openai.Int(int64(e.dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed content: %v", ErrUnavailable, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", ErrUnavailable)
	}

	raw := resp.Data[0].Embedding
	values := make([]float32, len(raw))
	for i, v := range raw {
		values[i] = float32(v)
	}
	if len(values) != e.dimensions {
		return nil, fmt.Errorf("embedding dimensions mismatch: got %d want %d", len(values), e.dimensions)
	}
	return values, nil
}
