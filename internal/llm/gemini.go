package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/wildercb/VR-RPGAI/internal/types"
)

// geminiProvider adapts the GenAI client to the Provider interface.
type geminiProvider struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiProvider returns a provider backed by the Gemini API.
func NewGeminiProvider(ctx context.Context, apiKey, defaultModel string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &geminiProvider{
		client:       client,
		defaultModel: defaultModel,
	}, nil
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}

	cfg := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		t := float32(opts.Temperature)
		cfg.Temperature = &t
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}

	// Gemini takes the system prompt out of band; the rest of the
	// sequence maps user/assistant onto user/model turns.
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			cfg.SystemInstruction = genai.NewContentFromText(msg.Content, "system")
		case types.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, "model"))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, "user"))
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		slog.Error("failed to call llm API", "provider", "gemini", "model", model, "error", err.Error())
		return "", fmt.Errorf("%w: %v", classifyErr(err), err)
	}

	text := extractText(resp)
	if text == "" {
		return "", fmt.Errorf("%w: empty generation response", ErrUnavailable)
	}
	return text, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
