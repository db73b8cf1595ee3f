package llm

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/wildercb/VR-RPGAI/internal/types"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// openaiProvider wraps an OpenAI-compatible chat client. The same
// implementation serves OpenAI, OpenRouter, and Ollama's compatibility
// endpoint; only the base URL and credentials differ.
type openaiProvider struct {
	client             openai.Client
	name               string
	defaultModel       string
	versionHeaderValue string
}

func newOpenAICompatible(name, defaultModel string, opts ...option.RequestOption) (*openaiProvider, error) {
	if defaultModel == "" {
		return nil, fmt.Errorf("default model cannot be empty")
	}

	// Create the UA header value once, when the provider is created.
	headerValue := fmt.Sprintf("%s-go/%s go/%s",
		name, "1.0.0", strings.TrimPrefix(runtime.Version(), "go"))

	return &openaiProvider{
		client:             openai.NewClient(opts...),
		name:               name,
		defaultModel:       defaultModel,
		versionHeaderValue: headerValue,
	}, nil
}

// NewOpenAIProvider returns a provider backed by the OpenAI API.
func NewOpenAIProvider(apiKey, defaultModel string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	return newOpenAICompatible("openai", defaultModel, option.WithAPIKey(apiKey))
}

// NewOpenRouterProvider returns a provider routed through OpenRouter.
func NewOpenRouterProvider(apiKey, defaultModel string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	return newOpenAICompatible("openrouter", defaultModel,
		option.WithAPIKey(apiKey),
		option.WithBaseURL(openRouterBaseURL),
	)
}

// NewOllamaProvider returns a provider backed by a local Ollama server
// via its OpenAI-compatible endpoint. No API key is required.
func NewOllamaProvider(baseURL, defaultModel string) (Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	return newOpenAICompatible("ollama", defaultModel,
		option.WithAPIKey("ollama"),
		option.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/v1"),
	)
}

func (p *openaiProvider) Name() string {
	return p.name
}

func (p *openaiProvider) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(messages),
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params,
		option.WithHeader("user-agent", p.versionHeaderValue))
	if err != nil {
		slog.Error("failed to call llm API", "provider", p.name, "model", model, "error", err.Error())
		return "", fmt.Errorf("%w: %v", classifyErr(err), err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion response", ErrUnavailable)
	}

	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case types.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
